// Package jsonrpc implements the hub's RPC dispatcher and its two
// namespaces.
//
// Every transport delivers framed JSON objects to the Dispatcher, which
// is the transport.Handler for the whole process. A request looks like
//
//	{"id": 7, "method": "Integrations.ExecuteAction", "params": {...}, "token": "..."}
//
// and is answered with exactly one of
//
//	{"id": 7, "status": "success", "params": {...}}
//	{"id": 7, "status": "error", "error": "HardwareFailure"}
//
// Handlers either answer at once or return the id of a pending
// operation (see package pending); the response is then sent when the
// operation resolves or times out. A timed-out operation is reported
// as HardwareFailure. A frame whose call id cannot be recovered is
// answered with id -1 and the client is terminated.
//
// Notifications carry no id:
//
//	{"notification": "Integrations.StateChanged", "params": {...}}
//
// and go to every session that subscribed to the namespace with
// JSONRPC.SetNotificationStatus. Sessions start with no subscriptions.
//
// Namespaces:
//   - JSONRPC: Hello, Introspect, Version, SetNotificationStatus,
//     KeepAlive, and with an Authenticator CreateUser, Authenticate,
//     Tokens, RemoveToken
//   - Integrations: plugins, thing classes, things, actions, discovery
//     and state values, backed by integrations.Runtime
//
// All dispatch runs on the event loop. Blocking work such as password
// hashing runs on its own goroutine and resumes through the correlator.
package jsonrpc
