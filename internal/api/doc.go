// Package api hosts the optional status server. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live session counters.
//   - GET /v1/downloads?limit=N for the newest download-log entries.
//   - GET /v1/frontier for the number of pending URLs.
package api
