package integrations

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordedPublish struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []recordedPublish
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, recordedPublish{topic, payload, retained})
	return nil
}

func (f *fakePublisher) snapshot() []recordedPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPublish(nil), f.msgs...)
}

func TestStatePublisher(t *testing.T) {
	client := &fakePublisher{}
	p := NewStatePublisher(client, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	thing := Thing{ID: "t1", States: map[string]any{"power": false}}
	p.ThingAdded(thing)
	p.StateChanged(thing, "power", true)
	p.ThingRemoved("t1")

	want := []struct {
		topic    string
		retained bool
	}{
		{"glhub/things/t1/lifecycle", false},
		{"glhub/things/t1/states/power", true},
		{"glhub/things/t1/states/power", true},
		{"glhub/things/t1/states/power", true},
		{"glhub/things/t1/lifecycle", false},
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(client.snapshot()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := client.snapshot()
	if len(msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].topic != w.topic || msgs[i].retained != w.retained {
			t.Errorf("msg[%d] = %s retained=%v, want %s retained=%v", i, msgs[i].topic, msgs[i].retained, w.topic, w.retained)
		}
	}

	var state statePayload
	if err := json.Unmarshal(msgs[2].payload, &state); err != nil || state.Value != true {
		t.Errorf("state payload = %s (%v)", msgs[2].payload, err)
	}
	if len(msgs[3].payload) != 0 {
		t.Errorf("retained clear payload = %q, want empty", msgs[3].payload)
	}
}

type fakeHistory struct {
	states []string
	events []string
}

func (f *fakeHistory) WriteThingState(thingID, _, stateTypeID string, _ any, _ time.Time) {
	f.states = append(f.states, thingID+"/"+stateTypeID)
}

func (f *fakeHistory) WriteThingEvent(thingID, _, eventTypeID string, _ map[string]any, _ time.Time) {
	f.events = append(f.events, thingID+"/"+eventTypeID)
}

func TestHistoryObserver(t *testing.T) {
	h := newHarness(t, nil, nil)
	hist := &fakeHistory{}
	h.rt.AddObserver(NewHistoryObserver(hist))
	id := h.addLamp(t)

	h.plugin.host.StateChanged(id, statePower, true)
	h.plugin.host.EventOccurred(id, eventPressed, nil)
	h.loop.drain()

	if len(hist.states) != 1 || hist.states[0] != id+"/"+statePower {
		t.Errorf("states = %v", hist.states)
	}
	if len(hist.events) != 1 || hist.events[0] != id+"/"+eventPressed {
		t.Errorf("events = %v", hist.events)
	}
}

type panickyObserver struct{ NopObserver }

func (panickyObserver) ThingAdded(Thing) { panic("observer bug") }

func TestObserverPanicIsolated(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.rt.observers = append([]Observer{panickyObserver{}}, h.rt.observers...)

	id := h.addLamp(t)
	if len(h.obs.added) != 1 || h.obs.added[0] != id {
		t.Errorf("later observer missed notification: %v", h.obs.added)
	}
}
