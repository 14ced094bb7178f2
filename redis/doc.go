// Package redis backs flowkit with Redis through go-redis.
//
// It provides three things:
//
//   - Client and Component, a pooled connection with lifecycle and health
//     checks for processes that keep run records in Redis.
//   - RunStore, a run.Store that keeps each run as a JSON document and
//     indexes runs in a sorted set by creation time. Status changes and
//     checkpoints are applied under WATCH so concurrent writers cannot
//     resurrect a finished run.
//   - The "redis-stream" provider, which reads a stream with XRANGE using
//     entry ids as cursors and writes items with XADD.
//
// # Quick Start
//
//	comp := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	_ = comp.Start(ctx)
//	store := redis.NewRunStore(comp.Client(), "flowkit")
//	ctrl := run.NewController(store)
//
// Setting TLS.Enabled dials the server over TLS; TLS.CAFile pins the CA.
package redis
