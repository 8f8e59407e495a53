package hardware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Resource names a shared hardware resource a plugin can declare.
type Resource string

// Resources provided by the broker.
const (
	Timer       Resource = "timer"
	Network     Resource = "network"
	BluetoothLE Resource = "bluetooth-le"
	Discovery   Resource = "discovery"
	MQTT        Resource = "mqtt"
)

// AllResources lists every resource the broker knows.
var AllResources = []Resource{Timer, Network, BluetoothLE, Discovery, MQTT}

// Poster queues work on the event loop. *eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// Logger is the logging surface the broker needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Broker. A nil Scanner, Browser or MQTT client
// makes the matching resource unavailable.
type Options struct {
	// TickInterval drives the timer resource. Zero disables it.
	TickInterval time.Duration

	// HTTPClient backs the network resource; nil uses a client with
	// HTTPTimeout. MaxConcurrent bounds in-flight requests.
	HTTPClient    *http.Client
	HTTPTimeout   time.Duration
	MaxConcurrent int64

	Scanner Scanner

	Browser      Browser
	ServiceTypes []string
	Domain       string

	MQTT MQTTClient

	Logger Logger
}

type registration struct {
	pluginID string
	consumer any
	access   *Access
}

// Broker owns the hub's shared hardware and hands each plugin a scoped
// Access to the resources its descriptor declares.
//
// Ticks, BLE advertisements, mDNS entries and MQTT messages are fanned
// out on the event loop, and only to plugins that declared the resource
// and implement the matching consumer interface. A panicking consumer is
// recovered and logged; the others still receive the event.
//
// Thread Safety:
//   - Register, Unregister and Available are safe for concurrent use.
type Broker struct {
	loop   Poster
	opts   Options
	logger Logger

	network *networkManager
	mqtt    *mqttHub

	mu    sync.RWMutex
	plugs map[string]*registration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates a broker that fans out on loop.
func NewBroker(loop Poster, opts Options) *Broker {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	b := &Broker{
		loop:   loop,
		opts:   opts,
		logger: logger,
		plugs:  make(map[string]*registration),
	}
	b.network = newNetworkManager(loop, opts.HTTPClient, opts.HTTPTimeout, opts.MaxConcurrent, logger)
	if opts.MQTT != nil {
		b.mqtt = newMQTTHub(loop, opts.MQTT, logger)
	}
	return b
}

// Available reports whether the hub can provide r.
func (b *Broker) Available(r Resource) bool {
	switch r {
	case Timer:
		return b.opts.TickInterval > 0
	case Network:
		return true
	case BluetoothLE:
		return b.opts.Scanner != nil
	case Discovery:
		return b.opts.Browser != nil && len(b.opts.ServiceTypes) > 0
	case MQTT:
		return b.mqtt != nil
	default:
		return false
	}
}

// Register gives pluginID an Access scoped to declared. consumer is the
// plugin itself; it receives fan-out for each declared resource whose
// consumer interface it implements. Declared resources that the hub
// lacks are reported by Access.Unavailable, not as an error.
func (b *Broker) Register(pluginID string, declared []Resource, consumer any) (*Access, error) {
	for _, r := range declared {
		if !knownResource(r) {
			return nil, fmt.Errorf("%w: %q (plugin %s)", ErrUnknownResource, r, pluginID)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.plugs[pluginID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, pluginID)
	}

	access := newAccess(b, pluginID, declared)
	b.plugs[pluginID] = &registration{pluginID: pluginID, consumer: consumer, access: access}

	if missing := access.Unavailable(); len(missing) > 0 {
		b.logger.Warn("plugin declares unavailable hardware", "plugin", pluginID, "resources", missing)
	}
	return access, nil
}

// Unregister withdraws a plugin's access and drops its MQTT subscriptions.
func (b *Broker) Unregister(pluginID string) {
	b.mu.Lock()
	delete(b.plugs, pluginID)
	b.mu.Unlock()
	if b.mqtt != nil {
		b.mqtt.dropPlugin(pluginID)
	}
}

// Start launches the tick source, BLE scanning and mDNS browsing for
// every available resource.
func (b *Broker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	if b.Available(Timer) {
		b.wg.Add(1)
		go b.runTicker(ctx)
	}

	if b.Available(BluetoothLE) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			err := b.opts.Scanner.Scan(ctx, func(adv Advertisement) {
				b.loop.Post(func() { b.fanOutAdvertisement(adv) })
			})
			if err != nil && ctx.Err() == nil {
				b.logger.Error("ble scanning stopped", "error", err)
			}
		}()
	}

	if b.Available(Discovery) {
		for _, service := range b.opts.ServiceTypes {
			b.wg.Add(1)
			go func(service string) {
				defer b.wg.Done()
				err := b.opts.Browser.Browse(ctx, service, b.opts.Domain,
					func(e ServiceEntry) { b.loop.Post(func() { b.fanOutService(e, false) }) },
					func(e ServiceEntry) { b.loop.Post(func() { b.fanOutService(e, true) }) },
				)
				if err != nil && ctx.Err() == nil {
					b.logger.Error("mdns browse stopped", "service", service, "error", err)
				}
			}(service)
		}
	}

	b.logger.Info("hardware broker started",
		"timer", b.Available(Timer),
		"bluetooth_le", b.Available(BluetoothLE),
		"discovery", b.Available(Discovery),
		"mqtt", b.Available(MQTT))
	return nil
}

// Stop ends every feed and waits for in-flight HTTP requests.
func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.network.wait()
}

func (b *Broker) runTicker(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.loop.Post(func() { b.fanOutTick(now) })
		}
	}
}

// consumers returns registrations that declared r, ordered by plugin id.
func (b *Broker) consumers(r Resource) []*registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*registration, 0, len(b.plugs))
	for _, reg := range b.plugs {
		if reg.access.Declared(r) {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pluginID < out[j].pluginID })
	return out
}

func (b *Broker) fanOutTick(now time.Time) {
	for _, reg := range b.consumers(Timer) {
		if c, ok := reg.consumer.(TickConsumer); ok {
			b.deliver(reg.pluginID, Timer, func() { c.OnTick(now) })
		}
	}
}

func (b *Broker) fanOutAdvertisement(adv Advertisement) {
	for _, reg := range b.consumers(BluetoothLE) {
		if c, ok := reg.consumer.(BLEConsumer); ok {
			b.deliver(reg.pluginID, BluetoothLE, func() { c.OnAdvertisement(adv) })
		}
	}
}

func (b *Broker) fanOutService(e ServiceEntry, removed bool) {
	for _, reg := range b.consumers(Discovery) {
		c, ok := reg.consumer.(DiscoveryConsumer)
		if !ok {
			continue
		}
		if removed {
			b.deliver(reg.pluginID, Discovery, func() { c.OnServiceRemoved(e) })
		} else {
			b.deliver(reg.pluginID, Discovery, func() { c.OnServiceDiscovered(e) })
		}
	}
}

// deliver runs one consumer callback, isolating its panics.
func (b *Broker) deliver(pluginID string, r Resource, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("hardware consumer panic recovered",
				"plugin", pluginID, "resource", r, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func knownResource(r Resource) bool {
	for _, known := range AllResources {
		if r == known {
			return true
		}
	}
	return false
}
