// Package websocket is the WebSocket JSON-RPC transport.
//
// Each text frame carries exactly one JSON message, so no re-framing is
// needed. The transport is an http.Handler mounted on the API router at
// transports.websocket.path; it keeps connections alive with ping/pong.
package websocket
