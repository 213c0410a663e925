// Package server exposes the session registry over HTTP.
//
//   - REST API: "/api/sessions" and "/api/sessions/{id}" return snapshots
//   - Server-Sent Events: "/api/sse" streams snapshot updates
//   - Metrics: "/metrics" serves the Prometheus registry
//   - Health: "/healthz"
//
// The server shuts down gracefully on context cancellation, with a 5-second
// timeout for in-flight requests. It is started by
// [exportwatch.Poller.ServeStatus].
package server
