// Package audit keeps a persistent trail of thing lifecycle changes.
//
// A Recorder observes the integrations runtime and queues an entry for
// every thing that is added, reconfigured or removed. A single worker
// writes the entries to the audit_logs table so observer callbacks
// never block the event loop. The HTTP API lists entries through
// Repository.List.
package audit
