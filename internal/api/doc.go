// Package api hosts the HTTP server, middleware, and REST handlers for the
// crawler. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/discover and /v1/extract run one task synchronously.
//   - POST /v1/pipeline starts a full run and returns its run_id.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/events report
//     progress through a store.RunRepository.
package api
