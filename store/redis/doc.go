// Package redis implements store.Store on Redis. Checkpoints, records,
// and signals are stored as Hashes; per-key Lists carry signal publish
// order and Sets index live entities for enumeration. Writes stage on
// the transaction handle and apply in a single TxPipeline on commit, so
// each commit is all-or-nothing on the server. Record keys are reserved
// with SETNX while a handle holds a staged insert, which keeps
// first-writer-wins across processes.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
