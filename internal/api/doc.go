// Package api hosts the optional status server that runs alongside a
// reconciliation. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live progress snapshot of the current run.
package api
