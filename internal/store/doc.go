// Package store tracks which refs are being watched and by whom.
//
// This package is internal to refwatch. It owns the subscription registry:
// one logical [Subscription] per cache key, however many callbacks are
// attached to it. A subscription exists exactly as long as it has at least
// one callback.
//
// The main components are:
//
//   - [Repository] and [Target]: the identity of a watched ref
//   - [Key]: the deterministic cache key for a target
//   - [Registry]: thread-safe map of cache key to subscription
//   - [Subscriber]: one registered callback with its liveness flag
//
// The registry performs no I/O and never blocks on callbacks while holding
// its lock.
package store
