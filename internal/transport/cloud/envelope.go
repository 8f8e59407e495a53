package cloud

// Envelope types exchanged with the relay.
const (
	typeAuth          = "auth"
	typeAuthenticated = "authenticated"
	typeConnected     = "connected"
	typeData          = "data"
	typeDisconnected  = "disconnected"
	typeDisconnect    = "disconnect"
)

// envelope is one newline-delimited JSON line on the tunnel.
//
// After the auth exchange every line addresses a remote peer: the relay
// announces peers with "connected", carries their bytes in "data" and
// reports their departure with "disconnected". The hub answers with
// "data" and asks the relay to drop a peer with "disconnect".
type envelope struct {
	Type    string `json:"type"`
	Peer    string `json:"peer,omitempty"`
	Payload string `json:"payload,omitempty"`

	// Auth exchange only.
	Token   string `json:"token,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	UUID    string `json:"uuid,omitempty"`
	Name    string `json:"name,omitempty"`
	Success bool   `json:"success,omitempty"`
}
