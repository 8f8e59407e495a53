// Package mqttthing integrates devices that speak plain MQTT: a switch
// with state and command topics and a numeric sensor.
package mqttthing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Plugin, vendor and class ids.
const (
	PluginID      = "605b9f9f-af77-4fbf-8fdc-ceb1604c9093"
	VendorID      = "64109fb3-8816-416c-bfb5-6d2ba507e909"
	SwitchClassID = "103c88ed-b810-43d2-be7c-642ffc8f4340"
	SensorClassID = "c68324b3-7b52-4889-a560-e36019be7b7e"
)

// Param, state and action ids.
const (
	ParamStateTopic   = "4b8e5710-f644-4df9-a8ba-5b28e7f5775c"
	ParamCommandTopic = "e443a233-075e-432b-a895-a285846bd58f"
	ParamPayloadOn    = "8cbc3ba3-86d0-4b02-b879-4da6bda1f5dc"
	ParamPayloadOff   = "6c862b6d-e932-483e-9c2c-df144a56c035"

	StatePower     = "5c702fd5-d57a-41a3-8c89-6c7b052e6be6"
	StateValue     = "c097e881-0bde-4bb1-82eb-7f8d9d90db28"
	ActionPower    = StatePower
	ActionParamPow = "7a095446-8a05-4f42-8906-5f8e7c380964"
)

// qos is used for every subscription and command.
const qos = 1

// Plugin maps MQTT topics onto thing states.
//
// Thread Safety:
//   - Not safe for concurrent use. Called only on the event loop, where
//     the broker also delivers messages and completions.
type Plugin struct {
	host   integrations.Host
	mqtt   *hardware.MQTTProvider
	logger integrations.Logger

	things map[string]*binding
	topics map[string]*subscription // by state topic
}

// subscription is one state topic shared by the things bound to it.
type subscription struct {
	things  map[string]struct{}
	ready   bool
	waiting []string // things whose setup waits for the subscribe ack
}

type binding struct {
	thingID    string
	classID    string
	stateTopic string
	command    string
	payloadOn  string
	payloadOff string
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{
		things: make(map[string]*binding),
		topics: make(map[string]*subscription),
	}
}

// Descriptor implements integrations.Plugin.
func (p *Plugin) Descriptor() integrations.PluginDescriptor {
	stateTopic := integrations.ParamType{ID: ParamStateTopic, Name: "stateTopic", Type: integrations.TypeString}
	return integrations.PluginDescriptor{
		ID:          PluginID,
		Name:        "mqttthing",
		DisplayName: "Generic MQTT",
		Vendors:     []integrations.Vendor{{ID: VendorID, Name: "mqtt", DisplayName: "MQTT"}},
		Resources:   []hardware.Resource{hardware.MQTT},
		ThingClasses: []integrations.ThingClass{
			{
				ID:          SwitchClassID,
				VendorID:    VendorID,
				Name:        "mqttSwitch",
				DisplayName: "MQTT switch",
				ParamTypes: []integrations.ParamType{
					stateTopic,
					{ID: ParamCommandTopic, Name: "commandTopic", Type: integrations.TypeString},
					{ID: ParamPayloadOn, Name: "payloadOn", Type: integrations.TypeString, DefaultValue: "ON"},
					{ID: ParamPayloadOff, Name: "payloadOff", Type: integrations.TypeString, DefaultValue: "OFF"},
				},
				StateTypes: []integrations.StateType{
					{ID: StatePower, Name: "power", Type: integrations.TypeBool, DefaultValue: false, Writable: true},
				},
				ActionTypes: []integrations.ActionType{
					{ID: ActionPower, Name: "power", ParamTypes: []integrations.ParamType{
						{ID: ActionParamPow, Name: "power", Type: integrations.TypeBool},
					}},
				},
			},
			{
				ID:          SensorClassID,
				VendorID:    VendorID,
				Name:        "mqttSensor",
				DisplayName: "MQTT sensor",
				ParamTypes:  []integrations.ParamType{stateTopic},
				StateTypes: []integrations.StateType{
					{ID: StateValue, Name: "value", Type: integrations.TypeDouble, DefaultValue: 0},
				},
			},
		},
	}
}

// Init implements integrations.Plugin.
func (p *Plugin) Init(host integrations.Host) error {
	p.host = host
	p.logger = host.Logger()
	provider, err := host.Hardware().MQTT()
	if err != nil {
		// Setup reports HardwareNotAvailable for every thing.
		p.logger.Warn("mqtt resource unavailable", "error", err)
		return nil
	}
	p.mqtt = provider
	return nil
}

// SetupThing implements integrations.Plugin. Setup completes once the
// state topic subscription is acknowledged.
func (p *Plugin) SetupThing(info *integrations.SetupInfo) (integrations.Result, error) {
	if p.mqtt == nil {
		return integrations.Done, integrations.ErrHardwareNotAvailable
	}
	t := info.Thing
	b := &binding{
		thingID:    t.ID,
		classID:    t.ThingClassID,
		stateTopic: t.Params.String(ParamStateTopic),
		command:    t.Params.String(ParamCommandTopic),
		payloadOn:  t.Params.String(ParamPayloadOn),
		payloadOff: t.Params.String(ParamPayloadOff),
	}
	if b.stateTopic == "" || strings.ContainsAny(b.stateTopic, "+#") {
		return integrations.Done, fmt.Errorf("%w: state topic %q", integrations.ErrInvalidParameter, b.stateTopic)
	}
	p.things[t.ID] = b

	sub, ok := p.topics[b.stateTopic]
	if ok {
		sub.things[t.ID] = struct{}{}
		if sub.ready {
			return integrations.Done, nil
		}
		sub.waiting = append(sub.waiting, t.ID)
		return integrations.Async, nil
	}

	sub = &subscription{things: map[string]struct{}{t.ID: {}}, waiting: []string{t.ID}}
	p.topics[b.stateTopic] = sub
	topic := b.stateTopic
	p.mqtt.Subscribe(topic, qos, p.onMessage, func(err error) {
		waiting := sub.waiting
		sub.waiting = nil
		sub.ready = err == nil
		for _, id := range waiting {
			if err != nil {
				p.forget(id)
				p.host.ThingSetupFinished(id, fmt.Errorf("%w: subscribing %s: %v", integrations.ErrHardwareFailure, topic, err))
				continue
			}
			p.host.ThingSetupFinished(id, nil)
		}
	})
	return integrations.Async, nil
}

// ThingRemoved implements integrations.Plugin.
func (p *Plugin) ThingRemoved(thing integrations.Thing) {
	p.forget(thing.ID)
}

func (p *Plugin) forget(thingID string) {
	b, ok := p.things[thingID]
	if !ok {
		return
	}
	delete(p.things, thingID)
	sub := p.topics[b.stateTopic]
	if sub == nil {
		return
	}
	delete(sub.things, thingID)
	if len(sub.things) == 0 {
		delete(p.topics, b.stateTopic)
		if p.mqtt != nil {
			p.mqtt.Unsubscribe(b.stateTopic)
		}
	}
}

// ExecuteAction implements integrations.Plugin.
func (p *Plugin) ExecuteAction(info *integrations.ActionInfo) (integrations.Result, error) {
	b, ok := p.things[info.Thing.ID]
	if !ok || b.classID != SwitchClassID || info.ActionTypeID != ActionPower {
		return integrations.Done, integrations.ErrActionTypeNotFound
	}
	if b.command == "" {
		return integrations.Done, fmt.Errorf("%w: no command topic", integrations.ErrHardwareFailure)
	}
	on, _ := info.Params.Value(ActionParamPow)
	payload := b.payloadOff
	if on == true {
		payload = b.payloadOn
	}

	actionID := info.ActionID
	p.mqtt.Publish(b.command, []byte(payload), qos, false, func(err error) {
		if err != nil {
			p.host.ActionExecutionFinished(actionID, fmt.Errorf("%w: %v", integrations.ErrHardwareFailure, err))
			return
		}
		p.host.ActionExecutionFinished(actionID, nil)
	})
	return integrations.Async, nil
}

// DiscoverThings implements integrations.Plugin. MQTT things are only
// created by hand.
func (p *Plugin) DiscoverThings(*integrations.DiscoveryInfo) (integrations.Result, error) {
	return integrations.Done, integrations.ErrCreationMethodNotSupported
}

// onMessage applies a state topic payload to every thing bound to it.
func (p *Plugin) onMessage(topic string, payload []byte) {
	sub := p.topics[topic]
	if sub == nil {
		return
	}
	ids := make([]string, 0, len(sub.things))
	for id := range sub.things {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	text := strings.TrimSpace(string(payload))
	for _, id := range ids {
		b := p.things[id]
		switch b.classID {
		case SwitchClassID:
			on, ok := parseSwitch(text, b.payloadOn, b.payloadOff)
			if !ok {
				p.logger.Debug("unrecognised switch payload", "thing_id", id, "topic", topic, "payload", text)
				continue
			}
			p.host.StateChanged(id, StatePower, on)
		case SensorClassID:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				p.logger.Debug("non-numeric sensor payload", "thing_id", id, "topic", topic, "payload", text)
				continue
			}
			p.host.StateChanged(id, StateValue, v)
		}
	}
}

func parseSwitch(text, on, off string) (bool, bool) {
	switch {
	case strings.EqualFold(text, on):
		return true, true
	case strings.EqualFold(text, off):
		return false, true
	}
	if v, err := strconv.ParseBool(text); err == nil {
		return v, true
	}
	return false, false
}
