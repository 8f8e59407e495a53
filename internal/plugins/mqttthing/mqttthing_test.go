package mqttthing

import (
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/plugins/plugintest"
)

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    map[string][]string
	unsubscribed []string
	subscribeErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][]string),
	}
}

func (f *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], string(payload))
	return nil
}

func (f *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeClient) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) deliver(topic, payload string) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(topic, []byte(payload)) //nolint:errcheck // broker handlers never fail
	}
}

func (f *fakeClient) publishedTo(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published[topic]...)
}

func (f *fakeClient) unsubscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribed)
}

func addSwitch(t *testing.T, h *plugintest.Harness, name string) string {
	t.Helper()
	out := h.Track(h.Runtime.AddThing(integrations.AddThingRequest{
		ThingClassID: SwitchClassID,
		Name:         name,
		Params: integrations.ParamList{
			{ParamTypeID: ParamStateTopic, Value: "home/plug/state"},
			{ParamTypeID: ParamCommandTopic, Value: "home/plug/set"},
		},
	}))
	h.Wait(t, func() bool { return out.Done })
	if out.Err != nil {
		t.Fatalf("AddThing() error = %v", out.Err)
	}
	id, _ := out.Params["thingId"].(string)
	return id
}

func TestSwitch(t *testing.T) {
	client := newFakeClient()
	h := plugintest.New(t, New(), hardware.Options{MQTT: client})

	first := addSwitch(t, h, "Plug")
	second := addSwitch(t, h, "Plug mirror")

	client.deliver("home/plug/state", "ON")
	h.Wait(t, func() bool {
		a, _ := h.Recorder.Last(first, StatePower)
		b, _ := h.Recorder.Last(second, StatePower)
		return a == true && b == true
	})

	client.deliver("home/plug/state", "garbage")
	client.deliver("home/plug/state", "off")
	h.Wait(t, func() bool {
		v, _ := h.Recorder.Last(first, StatePower)
		return v == false
	})

	out := h.Track(h.Runtime.ExecuteAction(integrations.ExecuteActionRequest{
		ThingID:      first,
		ActionTypeID: ActionPower,
		Params:       integrations.ParamList{{ParamTypeID: ActionParamPow, Value: true}},
	}))
	h.Wait(t, func() bool { return out.Done })
	if out.Err != nil {
		t.Fatalf("ExecuteAction() error = %v", out.Err)
	}
	if got := client.publishedTo("home/plug/set"); len(got) != 1 || got[0] != "ON" {
		t.Errorf("published = %v", got)
	}

	if _, err := h.Runtime.RemoveThing(first); err != nil {
		t.Fatal(err)
	}
	if client.unsubscribedCount() != 0 {
		t.Error("unsubscribed while another thing still uses the topic")
	}
	if _, err := h.Runtime.RemoveThing(second); err != nil {
		t.Fatal(err)
	}
	h.Wait(t, func() bool { return client.unsubscribedCount() == 1 })
}

func TestSensor(t *testing.T) {
	client := newFakeClient()
	h := plugintest.New(t, New(), hardware.Options{MQTT: client})

	out := h.Track(h.Runtime.AddThing(integrations.AddThingRequest{
		ThingClassID: SensorClassID,
		Params:       integrations.ParamList{{ParamTypeID: ParamStateTopic, Value: "home/temp"}},
	}))
	h.Wait(t, func() bool { return out.Done })
	id, _ := out.Params["thingId"].(string)

	client.deliver("home/temp", " 21.5 ")
	h.Wait(t, func() bool {
		v, _ := h.Recorder.Last(id, StateValue)
		return v == 21.5
	})
}

func TestSetupFailures(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("not authorised")
	h := plugintest.New(t, New(), hardware.Options{MQTT: client})

	out := h.Track(h.Runtime.AddThing(integrations.AddThingRequest{
		ThingClassID: SensorClassID,
		Params:       integrations.ParamList{{ParamTypeID: ParamStateTopic, Value: "home/temp"}},
	}))
	h.Wait(t, func() bool { return out.Done })
	if !errors.Is(out.Err, integrations.ErrHardwareFailure) {
		t.Errorf("failed subscribe error = %v", out.Err)
	}

	out = h.Track(h.Runtime.AddThing(integrations.AddThingRequest{
		ThingClassID: SensorClassID,
		Params:       integrations.ParamList{{ParamTypeID: ParamStateTopic, Value: "home/#"}},
	}))
	if !errors.Is(out.Err, integrations.ErrInvalidParameter) {
		t.Errorf("wildcard topic error = %v", out.Err)
	}

	noMQTT := plugintest.New(t, New(), hardware.Options{})
	out = noMQTT.Track(noMQTT.Runtime.AddThing(integrations.AddThingRequest{
		ThingClassID: SensorClassID,
		Params:       integrations.ParamList{{ParamTypeID: ParamStateTopic, Value: "home/temp"}},
	}))
	if !errors.Is(out.Err, integrations.ErrHardwareNotAvailable) {
		t.Errorf("setup without mqtt error = %v", out.Err)
	}
}
