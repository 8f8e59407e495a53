// Package tcp is the raw TCP (optionally TLS) JSON-RPC transport.
//
// Each accepted connection becomes one client. Messages are newline
// terminated JSON objects in both directions. When an Advertiser is set
// the listening port is announced over mDNS so apps can find the hub
// without configuration.
package tcp
