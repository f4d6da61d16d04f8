package redis

// Redis key naming conventions for corda data.
// All keys are prefixed with "corda:" to avoid collisions.

const keyPrefix = "corda:"

// ── Checkpoint keys ──

// checkpointKey returns the Hash key for a run's checkpoint: corda:checkpoint:{runID}
func checkpointKey(runID string) string { return keyPrefix + "checkpoint:" + runID }

// checkpointRunsKey is the Set tracking run IDs with a live checkpoint.
const checkpointRunsKey = keyPrefix + "checkpoint_runs"

// ── Record keys ──

// recordKey returns the Hash key for a record: corda:record:{key}
func recordKey(key string) string { return keyPrefix + "record:" + key }

// recordKeysKey is the Set tracking all record keys for enumeration.
const recordKeysKey = keyPrefix + "record_keys"

// reserveKey returns the SETNX reservation key a handle holds while it
// has a staged insert for a record key: corda:reserve:{key}
func reserveKey(key string) string { return keyPrefix + "reserve:" + key }

// ── Signal keys ──

// signalKey returns the Hash key for a signal: corda:signal:{id}
func signalKey(id string) string { return keyPrefix + "signal:" + id }

// signalListKey returns the List carrying publish order for a wait key:
// corda:signals:{key}
func signalListKey(waitKey string) string { return keyPrefix + "signals:" + waitKey }
