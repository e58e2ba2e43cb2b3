// Package api hosts the HTTP server and middleware for operator access.
// Notable routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/status for a JSON snapshot of the current enrichment run.
package api
