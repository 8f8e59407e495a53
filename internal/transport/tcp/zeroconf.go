package tcp

import (
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces the JSON-RPC endpoint on the local network.
type Advertiser interface {
	Advertise(port int) error
	Shutdown()
}

// ZeroconfAdvertiser publishes the endpoint as an mDNS service.
type ZeroconfAdvertiser struct {
	Instance string
	Service  string
	Domain   string
	TXT      []string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewZeroconfAdvertiser returns an advertiser for service (e.g. "_jsonrpc._tcp")
// whose TXT records carry the hub's name and uuid.
func NewZeroconfAdvertiser(instance, service, domain, serverUUID, version string) *ZeroconfAdvertiser {
	return &ZeroconfAdvertiser{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		TXT: []string{
			"name=" + instance,
			"uuid=" + serverUUID,
			"version=" + version,
			"txtvers=1",
		},
	}
}

// Advertise registers the service on all interfaces, replacing a previous
// registration.
func (a *ZeroconfAdvertiser) Advertise(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	server, err := zeroconf.Register(a.Instance, a.Service, a.Domain, port, a.TXT, nil)
	if err != nil {
		return fmt.Errorf("registering %s: %w", a.Service, err)
	}
	a.server = server
	return nil
}

// Shutdown withdraws the advertisement.
func (a *ZeroconfAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
