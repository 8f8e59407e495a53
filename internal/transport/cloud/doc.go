// Package cloud is the cloud relay tunnel transport.
//
// The hub dials one persistent (TLS) connection to a relay and
// authenticates with a token and a nonce the relay must echo:
//
//	-> {"type":"auth","token":"...","nonce":"...","uuid":"...","name":"..."}
//	<- {"type":"authenticated","nonce":"...","success":true}
//
// After that the tunnel carries newline-delimited envelopes for many
// remote peers. Inbound: connected, data, disconnected. Outbound: data
// and disconnect. Each peer gets its own client id and Framer, so the
// session layer cannot tell a tunnelled client from a local one.
//
// A dropped tunnel disconnects every peer and is re-dialled with
// exponential backoff (1s doubling to 60s, plus up to 25% jitter).
package cloud
