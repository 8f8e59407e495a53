package hardware

import "fmt"

// Access is one plugin's view of the broker, limited to the resources
// its descriptor declared.
type Access struct {
	broker   *Broker
	pluginID string
	declared map[Resource]struct{}
}

func newAccess(b *Broker, pluginID string, declared []Resource) *Access {
	set := make(map[Resource]struct{}, len(declared))
	for _, r := range declared {
		set[r] = struct{}{}
	}
	return &Access{broker: b, pluginID: pluginID, declared: set}
}

// Declared reports whether the plugin declared r.
func (a *Access) Declared(r Resource) bool {
	_, ok := a.declared[r]
	return ok
}

// Unavailable lists declared resources this hub cannot provide.
func (a *Access) Unavailable() []Resource {
	var out []Resource
	for _, r := range AllResources {
		if a.Declared(r) && !a.broker.Available(r) {
			out = append(out, r)
		}
	}
	return out
}

func (a *Access) check(r Resource) error {
	if !a.Declared(r) {
		return fmt.Errorf("%w: %s", ErrNotDeclared, r)
	}
	if !a.broker.Available(r) {
		return fmt.Errorf("%w: %s", ErrUnavailable, r)
	}
	return nil
}

// Network returns the shared HTTP client.
func (a *Access) Network() (*NetworkClient, error) {
	if err := a.check(Network); err != nil {
		return nil, err
	}
	return &NetworkClient{manager: a.broker.network, pluginID: a.pluginID}, nil
}

// MQTT returns the plugin's view of the broker connection.
func (a *Access) MQTT() (*MQTTProvider, error) {
	if err := a.check(MQTT); err != nil {
		return nil, err
	}
	return &MQTTProvider{hub: a.broker.mqtt, pluginID: a.pluginID}, nil
}

// Require checks that r is declared and available. Plugins use it for
// the feed resources (timer, bluetooth-le, discovery), which have no
// handle of their own.
func (a *Access) Require(r Resource) error {
	return a.check(r)
}
