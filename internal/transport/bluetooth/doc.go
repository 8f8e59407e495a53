// Package bluetooth is the Bluetooth RFCOMM JSON-RPC transport.
//
// The hub registers a BlueZ server profile (org.bluez.Profile1) under
// ServiceUUID over the system D-Bus. Each connected peer arrives as a
// socket descriptor and is then treated exactly like a TCP client:
// newline-delimited JSON framed by transport.StreamSet.
//
// The Acceptor interface separates BlueZ from the transport so that the
// transport can run over any stream source (tests use net.Pipe).
package bluetooth
