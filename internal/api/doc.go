// Package api hosts the local control server for a running dashboard.
// Notable routes:
//   - GET /healthz for probes and GET /metrics for Prometheus scraping.
//   - GET /v1/view for the current state and GET /v1/view/stream for a
//     WebSocket that pushes a snapshot after every change.
//   - POST /v1/view/..., /v1/selection/..., /v1/jobs/..., /v1/bulk, and
//     /v1/session/logout to drive the dashboard.
package api
