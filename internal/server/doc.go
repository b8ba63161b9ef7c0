// Package server provides the HTTP API, health endpoints, and metrics
// server for the credential broker.
//
// # Key Components
//
// ServerContext carries the shared broker service, token store, metrics,
// and audit logger across the HTTP handlers and MCP tools, and tracks
// shutdown state.
//
// API exposes the broker over HTTP:
//   - POST /api/v1/client registers a client
//   - POST /api/v1/client/auths attaches auth configurations to a client
//   - GET  /api/v1/auth issues a Google authorization URL
//   - GET  /api/v1/auth/callback resolves the OAuth callback and redirects
//
// HealthChecker serves /healthz and /readyz probes; readiness includes a
// database ping so traffic is only routed once the store is reachable.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolating
// operational metrics from application traffic.
package server
