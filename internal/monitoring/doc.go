// Package monitoring provides Prometheus metrics for the session
// engine: spawn/exit/kill/resize counters, console activity, WebSocket
// connection tracking, and HTTP request metrics via Gin middleware.
//
// Recorders are nil-safe; components accept a *Metrics and simply
// record, whether or not monitoring is wired.
package monitoring
