package corda

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("corda: no store configured")
	ErrStoreClosed     = errors.New("corda: store closed")
	ErrMigrationFailed = errors.New("corda: migration failed")

	// Classification errors. Backends and codecs join these into their
	// wraps so callers can errors.Is against the class: storage failures
	// are retryable from the last checkpoint, deserialization failures
	// are not. Either one aborts the enclosing transaction.
	ErrStorageUnavailable = errors.New("corda: storage unavailable")
	ErrDeserialization    = errors.New("corda: deserialization failed")

	// Transaction errors.
	ErrTxDone    = errors.New("corda: transaction already committed or rolled back")
	ErrForeignTx = errors.New("corda: transaction handle belongs to a different store")

	// Not found errors.
	ErrRunNotFound    = errors.New("corda: run not found")
	ErrRecordNotFound = errors.New("corda: record not found")
	ErrSignalNotFound = errors.New("corda: signal not found")
	ErrFlowNotFound   = errors.New("corda: flow not registered")

	// Conflict errors.
	ErrFlowExists = errors.New("corda: flow already registered")

	// State errors.
	ErrNotErrored         = errors.New("corda: run is not in the errored state")
	ErrNotStarted         = errors.New("corda: not started")
	ErrStopped            = errors.New("corda: stopped")
	ErrMaxRetriesExceeded = errors.New("corda: max transition retries exceeded")
)
