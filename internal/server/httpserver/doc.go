// Package httpserver serves the daemon's status endpoints:
//
//   - GET /metrics: Prometheus exposition
//   - GET /health: liveness
//   - GET /ready: 200 once a snapshot is committed, 503 before
//   - GET /snapshot: summary of the last committed snapshot
//   - GET /archive: archived snapshot headers, when an archive is configured
//
// JSON responses use a common envelope carrying a request id.
package httpserver
