package hardware

import (
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the process-wide MQTT client the broker
// shares with plugins. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// MessageFunc receives an MQTT message on the event loop.
type MessageFunc func(topic string, payload []byte)

// mqttHub multiplexes plugin subscriptions over the single client. The
// client keeps one handler per filter, so each filter is subscribed once
// and its messages are fanned out to every plugin that asked for it.
type mqttHub struct {
	loop   Poster
	client MQTTClient
	logger Logger

	mu      sync.Mutex
	filters map[string]map[string]MessageFunc // filter -> plugin -> handler
}

func newMQTTHub(loop Poster, client MQTTClient, logger Logger) *mqttHub {
	return &mqttHub{
		loop:    loop,
		client:  client,
		logger:  logger,
		filters: make(map[string]map[string]MessageFunc),
	}
}

func (h *mqttHub) subscribe(pluginID, filter string, qos byte, fn MessageFunc, done func(error)) {
	h.mu.Lock()
	subs, exists := h.filters[filter]
	if !exists {
		subs = make(map[string]MessageFunc)
		h.filters[filter] = subs
	}
	subs[pluginID] = fn
	h.mu.Unlock()

	if exists {
		h.complete(done, nil)
		return
	}

	go func() {
		err := h.client.Subscribe(filter, qos, func(topic string, payload []byte) error {
			h.dispatch(filter, topic, payload)
			return nil
		})
		if err != nil {
			h.mu.Lock()
			delete(h.filters, filter)
			h.mu.Unlock()
			h.logger.Warn("plugin mqtt subscribe failed", "plugin", pluginID, "filter", filter, "error", err)
		}
		h.complete(done, err)
	}()
}

func (h *mqttHub) unsubscribe(pluginID, filter string) {
	h.mu.Lock()
	subs, ok := h.filters[filter]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(subs, pluginID)
	last := len(subs) == 0
	if last {
		delete(h.filters, filter)
	}
	h.mu.Unlock()

	if last {
		go func() {
			if err := h.client.Unsubscribe(filter); err != nil {
				h.logger.Debug("mqtt unsubscribe failed", "filter", filter, "error", err)
			}
		}()
	}
}

func (h *mqttHub) dropPlugin(pluginID string) {
	h.mu.Lock()
	var filters []string
	for filter, subs := range h.filters {
		if _, ok := subs[pluginID]; ok {
			filters = append(filters, filter)
		}
	}
	h.mu.Unlock()
	for _, filter := range filters {
		h.unsubscribe(pluginID, filter)
	}
}

// dispatch runs on the client's callback goroutine and posts the fan-out
// to the loop.
func (h *mqttHub) dispatch(filter, topic string, payload []byte) {
	msg := append([]byte(nil), payload...)
	h.loop.Post(func() {
		h.mu.Lock()
		subs := h.filters[filter]
		plugins := make([]string, 0, len(subs))
		handlers := make(map[string]MessageFunc, len(subs))
		for id, fn := range subs {
			plugins = append(plugins, id)
			handlers[id] = fn
		}
		h.mu.Unlock()

		sort.Strings(plugins)
		for _, id := range plugins {
			fn := handlers[id]
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						h.logger.Error("mqtt consumer panic recovered", "plugin", id, "topic", topic, "panic", rec)
					}
				}()
				fn(topic, msg)
			}()
		}
	})
}

func (h *mqttHub) publish(pluginID, topic string, payload []byte, qos byte, retained bool, done func(error)) {
	go func() {
		err := h.client.Publish(topic, payload, qos, retained)
		if err != nil {
			h.logger.Warn("plugin mqtt publish failed", "plugin", pluginID, "topic", topic, "error", err)
		}
		h.complete(done, err)
	}()
}

func (h *mqttHub) complete(done func(error), err error) {
	if done == nil {
		return
	}
	h.loop.Post(func() { done(err) })
}

// MQTTProvider is a plugin's handle on the shared MQTT connection.
// Publish and Subscribe never block; their completion callbacks and all
// incoming messages run on the event loop.
type MQTTProvider struct {
	hub      *mqttHub
	pluginID string
}

// Publish sends payload to topic. done may be nil.
func (p *MQTTProvider) Publish(topic string, payload []byte, qos byte, retained bool, done func(error)) {
	p.hub.publish(p.pluginID, topic, payload, qos, retained, done)
}

// Subscribe delivers messages matching filter to fn. done may be nil.
func (p *MQTTProvider) Subscribe(filter string, qos byte, fn MessageFunc, done func(error)) {
	p.hub.subscribe(p.pluginID, filter, qos, fn, done)
}

// Unsubscribe stops delivery for filter to this plugin.
func (p *MQTTProvider) Unsubscribe(filter string) {
	p.hub.unsubscribe(p.pluginID, filter)
}

// Connected reports whether the shared client is connected.
func (p *MQTTProvider) Connected() bool {
	return p.hub.client.IsConnected()
}
