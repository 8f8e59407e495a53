package integrations

import (
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
)

// Value types a param, state or event field may have.
const (
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeUint   = "uint"
	TypeDouble = "double"
	TypeString = "string"
	TypeColor  = "color"
)

// CreateMethod is how a thing of a class comes into existence.
type CreateMethod string

// Create methods.
const (
	CreateUser      CreateMethod = "user"
	CreateDiscovery CreateMethod = "discovery"
	CreateAuto      CreateMethod = "auto"
)

// Vendor groups thing classes by manufacturer.
type Vendor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// ParamType describes one named, typed parameter.
type ParamType struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	DefaultValue  any    `json:"defaultValue,omitempty"`
	MinValue      any    `json:"minValue,omitempty"`
	MaxValue      any    `json:"maxValue,omitempty"`
	AllowedValues []any  `json:"allowedValues,omitempty"`
	ReadOnly      bool   `json:"readOnly,omitempty"`
}

// StateType describes one state value of a thing. A writable state has
// an action of the same id that sets it.
type StateType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultValue any    `json:"defaultValue,omitempty"`
	Unit         string `json:"unit,omitempty"`
	Writable     bool   `json:"writable,omitempty"`
}

// EventType describes an event a thing can emit.
type EventType struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	ParamTypes []ParamType `json:"paramTypes"`
}

// ActionType describes an action a thing can execute.
type ActionType struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	ParamTypes []ParamType `json:"paramTypes"`
}

// ThingClass is the device class: the params a thing needs and the
// states, events and actions it offers.
type ThingClass struct {
	ID                  string         `json:"id"`
	VendorID            string         `json:"vendorId"`
	PluginID            string         `json:"pluginId"`
	Name                string         `json:"name"`
	DisplayName         string         `json:"displayName"`
	CreateMethods       []CreateMethod `json:"createMethods"`
	ParamTypes          []ParamType    `json:"paramTypes"`
	SettingsTypes       []ParamType    `json:"settingsTypes"`
	DiscoveryParamTypes []ParamType    `json:"discoveryParamTypes"`
	StateTypes          []StateType    `json:"stateTypes"`
	EventTypes          []EventType    `json:"eventTypes"`
	ActionTypes         []ActionType   `json:"actionTypes"`
}

// Supports reports whether m is one of the class's create methods.
// A class without create methods is user-creatable.
func (c *ThingClass) Supports(m CreateMethod) bool {
	if len(c.CreateMethods) == 0 {
		return m == CreateUser
	}
	for _, cm := range c.CreateMethods {
		if cm == m {
			return true
		}
	}
	return false
}

// ActionType returns the action with id, or nil.
func (c *ThingClass) ActionType(id string) *ActionType {
	for i := range c.ActionTypes {
		if c.ActionTypes[i].ID == id {
			return &c.ActionTypes[i]
		}
	}
	return nil
}

// StateType returns the state with id, or nil.
func (c *ThingClass) StateType(id string) *StateType {
	for i := range c.StateTypes {
		if c.StateTypes[i].ID == id {
			return &c.StateTypes[i]
		}
	}
	return nil
}

// EventType returns the event with id, or nil.
func (c *ThingClass) EventType(id string) *EventType {
	for i := range c.EventTypes {
		if c.EventTypes[i].ID == id {
			return &c.EventTypes[i]
		}
	}
	return nil
}

// PluginDescriptor is everything the runtime knows about a plugin. It
// is immutable once the plugin is loaded.
type PluginDescriptor struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	DisplayName  string              `json:"displayName"`
	Vendors      []Vendor            `json:"vendors"`
	ThingClasses []ThingClass        `json:"thingClasses"`
	Resources    []hardware.Resource `json:"resources,omitempty"`
}

// Param is one parameter value keyed by its param type id.
type Param struct {
	ParamTypeID string `json:"paramTypeId"`
	Value       any    `json:"value"`
}

// ParamList is an ordered list of params.
type ParamList []Param

// Value returns the value of id and whether it is present.
func (l ParamList) Value(id string) (any, bool) {
	for _, p := range l {
		if p.ParamTypeID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// String returns the value of id as a string, or "".
func (l ParamList) String(id string) string {
	v, _ := l.Value(id)
	s, _ := v.(string)
	return s
}

// Map returns the params keyed by param type id.
func (l ParamList) Map() map[string]any {
	out := make(map[string]any, len(l))
	for _, p := range l {
		out[p.ParamTypeID] = p.Value
	}
	return out
}

func (l ParamList) clone() ParamList {
	if l == nil {
		return nil
	}
	out := make(ParamList, len(l))
	copy(out, l)
	return out
}

// ThingDescriptor is a discovery result or an auto-appearing thing: a
// proposal the user (or the runtime) can turn into a thing.
type ThingDescriptor struct {
	ID           string    `json:"id"`
	ThingClassID string    `json:"thingClassId"`
	ThingID      string    `json:"thingId,omitempty"`
	ParentID     string    `json:"parentId,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Params       ParamList `json:"params"`
}

// Event is an occurrence reported by a thing.
type Event struct {
	ThingID     string    `json:"thingId"`
	EventTypeID string    `json:"eventTypeId"`
	Params      ParamList `json:"params"`
	Timestamp   time.Time `json:"timestamp"`
}
