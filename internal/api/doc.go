// Package api implements the hub's HTTP surface.
//
// This package provides:
//   - GET /api/v1/health for liveness probes
//   - GET /api/v1/status with connected clients, things and pending operations
//   - GET /api/v1/audit with the thing lifecycle audit trail
//   - GET /metrics for Prometheus scraping
//   - The WebSocket JSON-RPC transport, mounted at its configured path
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// The control API itself is JSON-RPC (see package jsonrpc); HTTP carries
// only the WebSocket upgrade and operational endpoints.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
