package integrations

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// Default deadlines for asynchronous plugin work.
const (
	DefaultSetupTimeout     = 30 * time.Second
	DefaultActionTimeout    = 30 * time.Second
	DefaultDiscoveryTimeout = 30 * time.Second

	storeTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the runtime and handed
// to plugins.
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

// Loop is where the runtime runs. *eventloop.Loop satisfies it.
type Loop interface {
	Post(fn func()) bool
}

// Broker hands plugins their hardware access. *hardware.Broker
// satisfies it.
type Broker interface {
	Register(pluginID string, declared []hardware.Resource, consumer any) (*hardware.Access, error)
	Unregister(pluginID string)
}

// Metrics receives runtime gauges and counters. *metrics.Metrics
// satisfies it.
type Metrics interface {
	PluginFault(plugin string)
	SetThingsConfigured(n int)
}

type noopMetrics struct{}

func (noopMetrics) PluginFault(string)      {}
func (noopMetrics) SetThingsConfigured(int) {}

// Options configures a Runtime.
type Options struct {
	SetupTimeout     time.Duration
	ActionTimeout    time.Duration
	DiscoveryTimeout time.Duration

	Metrics Metrics
	Logger  Logger
	// PluginLogger returns the logger handed to a plugin; nil uses Logger.
	PluginLogger func(pluginID string) Logger
}

// Outcome is the result of a runtime operation: either immediate
// response params or the id of a pending operation whose resolution
// carries them.
type Outcome struct {
	Params      map[string]any
	OperationID string
}

// Pending reports whether the outcome is deferred.
func (o Outcome) Pending() bool { return o.OperationID != "" }

type loadedPlugin struct {
	plugin Plugin
	desc   PluginDescriptor
	access *hardware.Access
}

type classEntry struct {
	class     *ThingClass
	params    *paramSchema
	settings  *paramSchema
	discovery *paramSchema
	actions   map[string]*paramSchema
}

type setupState struct {
	thing     *Thing
	opID      string
	committed bool
}

// Runtime hosts plugins and owns every configured thing.
//
// It is the only mutator of thing state. Apart from ThingCount and
// construction, every method must be called on the event loop; plugin
// callbacks arrive through the Host, which posts to the loop.
type Runtime struct {
	loop   Loop
	ops    *pending.Correlator
	broker Broker
	store  Store
	opts   Options
	logger Logger

	plugins     map[string]*loadedPlugin
	pluginOrder []string
	classes     map[string]*classEntry
	classOrder  []string

	things      map[string]*Thing
	setups      map[string]*setupState
	actions     map[string]string   // action id -> operation id
	discoveries map[string][]string // thing class id -> operation ids
	descriptors map[string]ThingDescriptor
	observers   []Observer

	thingCount atomic.Int64
}

// New creates a runtime. store may be nil for a runtime without
// persistence.
func New(loop Loop, ops *pending.Correlator, broker Broker, store Store, opts Options) *Runtime {
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Runtime{
		loop:        loop,
		ops:         ops,
		broker:      broker,
		store:       store,
		opts:        opts,
		logger:      logger,
		plugins:     make(map[string]*loadedPlugin),
		classes:     make(map[string]*classEntry),
		things:      make(map[string]*Thing),
		setups:      make(map[string]*setupState),
		actions:     make(map[string]string),
		discoveries: make(map[string][]string),
		descriptors: make(map[string]ThingDescriptor),
	}
}

// AddObserver registers o for thing notifications.
func (r *Runtime) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// LoadPlugin validates p's descriptor, registers it with the hardware
// broker and initialises it.
func (r *Runtime) LoadPlugin(p Plugin) error {
	desc := p.Descriptor()
	if desc.ID == "" {
		return fmt.Errorf("%w: empty plugin id", ErrInvalidDescriptor)
	}
	if _, exists := r.plugins[desc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPluginExists, desc.ID)
	}

	entries, err := r.compileClasses(&desc)
	if err != nil {
		return err
	}

	access, err := r.broker.Register(desc.ID, desc.Resources, p)
	if err != nil {
		return fmt.Errorf("registering plugin %s hardware: %w", desc.ID, err)
	}

	logger := r.logger
	if r.opts.PluginLogger != nil {
		logger = r.opts.PluginLogger(desc.ID)
	}
	host := &pluginHost{runtime: r, pluginID: desc.ID, access: access, logger: logger}

	if err := r.guardErr(desc.ID, "Init", func() error { return p.Init(host) }); err != nil {
		r.broker.Unregister(desc.ID)
		return fmt.Errorf("initialising plugin %s: %w", desc.ID, err)
	}

	r.plugins[desc.ID] = &loadedPlugin{plugin: p, desc: desc, access: access}
	r.pluginOrder = append(r.pluginOrder, desc.ID)
	for _, e := range entries {
		r.classes[e.class.ID] = e
		r.classOrder = append(r.classOrder, e.class.ID)
	}

	r.logger.Info("plugin loaded", "plugin", desc.ID, "thing_classes", len(entries))
	return nil
}

func (r *Runtime) compileClasses(desc *PluginDescriptor) ([]*classEntry, error) {
	entries := make([]*classEntry, 0, len(desc.ThingClasses))
	seen := make(map[string]bool)
	for i := range desc.ThingClasses {
		class := &desc.ThingClasses[i]
		if class.ID == "" {
			return nil, fmt.Errorf("%w: plugin %s has a class without id", ErrInvalidDescriptor, desc.ID)
		}
		if seen[class.ID] || r.classes[class.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate thing class %s", ErrInvalidDescriptor, class.ID)
		}
		seen[class.ID] = true
		class.PluginID = desc.ID

		e := &classEntry{class: class, actions: make(map[string]*paramSchema)}
		var err error
		if e.params, err = compileParamTypes(class.ID+"/params", class.ParamTypes); err != nil {
			return nil, fmt.Errorf("%w: class %s: %w", ErrInvalidDescriptor, class.ID, err)
		}
		if e.settings, err = compileParamTypes(class.ID+"/settings", class.SettingsTypes); err != nil {
			return nil, fmt.Errorf("%w: class %s: %w", ErrInvalidDescriptor, class.ID, err)
		}
		if e.discovery, err = compileParamTypes(class.ID+"/discovery", class.DiscoveryParamTypes); err != nil {
			return nil, fmt.Errorf("%w: class %s: %w", ErrInvalidDescriptor, class.ID, err)
		}
		for _, at := range class.ActionTypes {
			if e.actions[at.ID], err = compileParamTypes(class.ID+"/actions/"+at.ID, at.ParamTypes); err != nil {
				return nil, fmt.Errorf("%w: class %s: %w", ErrInvalidDescriptor, class.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Plugins returns the loaded plugin descriptors in load order.
func (r *Runtime) Plugins() []PluginDescriptor {
	out := make([]PluginDescriptor, 0, len(r.pluginOrder))
	for _, id := range r.pluginOrder {
		out = append(out, r.plugins[id].desc)
	}
	return out
}

// Vendors returns every vendor declared by a loaded plugin.
func (r *Runtime) Vendors() []Vendor {
	var out []Vendor
	seen := make(map[string]bool)
	for _, id := range r.pluginOrder {
		for _, v := range r.plugins[id].desc.Vendors {
			if !seen[v.ID] {
				seen[v.ID] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// ThingClasses returns the loaded classes, optionally restricted to one
// vendor and/or a set of class ids.
func (r *Runtime) ThingClasses(vendorID string, ids []string) []ThingClass {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []ThingClass
	for _, id := range r.classOrder {
		class := r.classes[id].class
		if vendorID != "" && class.VendorID != vendorID {
			continue
		}
		if len(want) > 0 && !want[id] {
			continue
		}
		out = append(out, *class)
	}
	return out
}

// Things returns copies of every configured thing, ordered by creation
// time.
func (r *Runtime) Things() []Thing {
	out := make([]Thing, 0, len(r.things))
	for _, t := range r.things {
		out = append(out, t.Copy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Thing returns a copy of one configured thing.
func (r *Runtime) Thing(id string) (Thing, bool) {
	t, ok := r.things[id]
	if !ok {
		return Thing{}, false
	}
	return t.Copy(), true
}

// ThingCount returns the number of configured things. Safe from any
// goroutine.
func (r *Runtime) ThingCount() int {
	return int(r.thingCount.Load())
}

// guard calls into plugin code, turning a panic into HardwareFailure.
func (r *Runtime) guard(pluginID, method string, fn func() (Result, error)) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panic recovered",
				"plugin", pluginID, "method", method, "panic", rec, "stack", string(debug.Stack()))
			r.opts.Metrics.PluginFault(pluginID)
			res, err = Done, ErrHardwareFailure
		}
	}()
	return fn()
}

func (r *Runtime) guardErr(pluginID, method string, fn func() error) error {
	_, err := r.guard(pluginID, method, func() (Result, error) { return Done, fn() })
	return err
}

func (r *Runtime) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func (r *Runtime) persist(t *Thing) {
	if r.store == nil {
		return
	}
	ctx, cancel := r.storeCtx()
	defer cancel()
	if err := r.store.Save(ctx, t); err != nil {
		r.logger.Error("persisting thing failed", "thing_id", t.ID, "error", err)
	}
}

func (r *Runtime) forget(id string) {
	if r.store == nil {
		return
	}
	ctx, cancel := r.storeCtx()
	defer cancel()
	if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrThingNotFound) {
		r.logger.Error("deleting stored thing failed", "thing_id", id, "error", err)
	}
}

func (r *Runtime) addToArena(t *Thing) {
	r.things[t.ID] = t
	r.thingCount.Store(int64(len(r.things)))
	r.opts.Metrics.SetThingsConfigured(len(r.things))
}

func (r *Runtime) dropFromArena(id string) {
	delete(r.things, id)
	r.thingCount.Store(int64(len(r.things)))
	r.opts.Metrics.SetThingsConfigured(len(r.things))
}
