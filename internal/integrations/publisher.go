package integrations

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// MQTTPublisher is the publish half of the MQTT client.
// *mqtt.Client satisfies it.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

const publishQueueSize = 256

type outgoing struct {
	topic    string
	payload  []byte
	retained bool
}

type statePayload struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type lifecyclePayload struct {
	Event string `json:"event"`
	Thing *Thing `json:"thing,omitempty"`
}

// StatePublisher mirrors thing states to MQTT as retained messages and
// forwards events and lifecycle changes.
//
// Observer callbacks only enqueue; a single worker goroutine started by
// Run does the blocking publishes, in order. When the queue is full the
// message is dropped and logged.
type StatePublisher struct {
	NopObserver

	client MQTTPublisher
	qos    byte
	logger Logger
	topics mqtt.Topics

	queue chan outgoing

	mu     sync.Mutex
	states map[string]map[string]struct{} // thing id -> published state type ids
}

// NewStatePublisher creates a publisher. Call Run to start publishing.
func NewStatePublisher(client MQTTPublisher, qos byte, logger Logger) *StatePublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StatePublisher{
		client: client,
		qos:    qos,
		logger: logger,
		queue:  make(chan outgoing, publishQueueSize),
		states: make(map[string]map[string]struct{}),
	}
}

// Run publishes queued messages until ctx is cancelled.
func (p *StatePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.client.Publish(msg.topic, msg.payload, p.qos, msg.retained); err != nil {
				p.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

func (p *StatePublisher) enqueue(topic string, v any, retained bool) {
	var payload []byte
	if v != nil {
		var err error
		if payload, err = json.Marshal(v); err != nil {
			p.logger.Warn("mqtt payload encoding failed", "topic", topic, "error", err)
			return
		}
	}
	select {
	case p.queue <- outgoing{topic: topic, payload: payload, retained: retained}:
	default:
		p.logger.Warn("mqtt publish queue full, message dropped", "topic", topic)
	}
}

// ThingAdded publishes the lifecycle event and every initial state.
func (p *StatePublisher) ThingAdded(thing Thing) {
	p.enqueue(p.topics.ThingLifecycle(thing.ID), lifecyclePayload{Event: "added", Thing: &thing}, false)
	ids := make([]string, 0, len(thing.States))
	for id := range thing.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	now := time.Now().UTC()
	for _, id := range ids {
		p.publishState(thing.ID, id, thing.States[id], now)
	}
}

// ThingChanged publishes the lifecycle event.
func (p *StatePublisher) ThingChanged(thing Thing) {
	p.enqueue(p.topics.ThingLifecycle(thing.ID), lifecyclePayload{Event: "changed", Thing: &thing}, false)
}

// ThingRemoved clears the thing's retained states.
func (p *StatePublisher) ThingRemoved(thingID string) {
	p.mu.Lock()
	published := p.states[thingID]
	delete(p.states, thingID)
	p.mu.Unlock()

	ids := make([]string, 0, len(published))
	for id := range published {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		// An empty retained message deletes the retained value.
		p.enqueue(p.topics.ThingState(thingID, id), nil, true)
	}
	p.enqueue(p.topics.ThingLifecycle(thingID), lifecyclePayload{Event: "removed"}, false)
}

// StateChanged publishes the new value retained.
func (p *StatePublisher) StateChanged(thing Thing, stateTypeID string, value any) {
	p.publishState(thing.ID, stateTypeID, value, time.Now().UTC())
}

// EventTriggered publishes the event.
func (p *StatePublisher) EventTriggered(thing Thing, event Event) {
	p.enqueue(p.topics.ThingEvent(thing.ID, event.EventTypeID), event, false)
}

func (p *StatePublisher) publishState(thingID, stateTypeID string, value any, ts time.Time) {
	p.mu.Lock()
	set, ok := p.states[thingID]
	if !ok {
		set = make(map[string]struct{})
		p.states[thingID] = set
	}
	set[stateTypeID] = struct{}{}
	p.mu.Unlock()

	p.enqueue(p.topics.ThingState(thingID, stateTypeID), statePayload{Value: value, Timestamp: ts}, true)
}
