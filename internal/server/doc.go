// Package server provides the HTTP API served by the refwatch CLI.
//
// This package handles all HTTP concerns:
//
//   - REST API: JSON endpoint at "/api/status" for the cached status of a ref
//   - Server-Sent Events: per-ref notifications at "/api/sse"
//   - Indicator control: "/api/indicators" plus pause and resume
//   - Metrics: Prometheus exposition at "/metrics"
//
// Refs are selected with the endpoint, owner, repo and ref query parameters.
// Reading "/api/status" never triggers a fetch; opening an SSE stream
// subscribes to the ref, which schedules one.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
