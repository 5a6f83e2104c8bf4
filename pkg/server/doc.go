// Package server ties together the gateway's client API, admin API,
// metrics and health checks into one HTTP server with lifecycle management.
//
// # Routes
//
//   - POST /v1/chat/completions - OpenAI-shaped dispatch
//   - POST /v1/messages         - Anthropic-shaped dispatch
//   - GET  /v1/models           - list virtual models
//   - /admin/*                  - provider/endpoint/pool CRUD, stats, logs
//   - GET  /admin/metrics       - Prometheus exposition
//   - GET  /health, /ready      - liveness/readiness probes
//
// # Middleware Chain
//
// Requests pass through, outermost first: Recovery, RequestID, CORS,
// Logging. There is no outer timeout middleware: pkg/gateway/dispatch
// already applies a per-candidate context.WithTimeout, so an outer
// deadline would either be redundant or cut a multi-candidate retry
// sequence short.
//
// # Graceful Shutdown
//
// The server handles SIGTERM/SIGINT automatically, draining active
// connections up to ShutdownTimeout before forcing closure.
package server
