package mqtt

import "strings"

// TopicPrefix roots every topic the hub publishes.
const TopicPrefix = "glhub"

// Topics builds hub MQTT topics.
//
//	Topics{}.ThingState("6f1c...", "power") // glhub/things/6f1c.../states/power
type Topics struct{}

// SystemStatus is the retained online/offline topic (also the Last Will).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ThingState carries the retained current value of one thing state.
func (Topics) ThingState(thingID, stateTypeID string) string {
	return TopicPrefix + "/things/" + thingID + "/states/" + stateTypeID
}

// ThingEvent carries a non-retained thing event.
func (Topics) ThingEvent(thingID, eventTypeID string) string {
	return TopicPrefix + "/things/" + thingID + "/events/" + eventTypeID
}

// ThingLifecycle announces thing added/removed/changed.
func (Topics) ThingLifecycle(thingID string) string {
	return TopicPrefix + "/things/" + thingID + "/lifecycle"
}

// AllThingStates matches every thing state topic.
func (Topics) AllThingStates() string {
	return TopicPrefix + "/things/+/states/+"
}

// ParseThingState extracts the thing and state ids from a ThingState topic.
func (Topics) ParseThingState(topic string) (thingID, stateTypeID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "things" || parts[3] != "states" {
		return "", "", false
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[2], parts[4], true
}

// Match reports whether topic matches the subscription filter, honouring
// the + and # wildcards.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		switch {
		case part == "#":
			return true
		case i >= len(t):
			return false
		case part == "+":
			continue
		case part != t[i]:
			return false
		}
	}
	return len(f) == len(t)
}
