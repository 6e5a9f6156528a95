// Package poller schedules commit status refreshes.
//
// The main components are:
//
//   - [Limiter]: bounds concurrent refreshes, queueing the excess in FIFO order
//   - [Refresher]: fetches, aggregates and caches one ref, then notifies its subscribers
//   - [Scheduler]: coalesced sweeps over subscribed refs with at most one refresh per ref in flight
//   - [IndicatorUpdater]: a pausable sequential walker over a caller-supplied collection
//
// Users of the refwatch library should not need to interact with this
// package directly. Configuration is done through the main refwatch package.
package poller
