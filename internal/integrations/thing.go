package integrations

import (
	"maps"
	"time"
)

// SetupStatus is the position of a thing in its setup state machine.
//
//	Created -> SettingUp -> Active | Rejected | SettingUpAsync
//	SettingUpAsync -> Active | Rejected
//	Active -> Removed
//
// Rejected and Removed are terminal.
type SetupStatus int

// Setup states.
const (
	StatusCreated SetupStatus = iota
	StatusSettingUp
	StatusSettingUpAsync
	StatusActive
	StatusRejected
	StatusRemoved
)

var statusNames = [...]string{"Created", "SettingUp", "SettingUpAsync", "Active", "Rejected", "Removed"}

func (s SetupStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// MarshalText renders the status by name.
func (s SetupStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canMoveTo reports whether s -> next is a legal transition.
func (s SetupStatus) canMoveTo(next SetupStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusSettingUp
	case StatusSettingUp:
		return next == StatusActive || next == StatusRejected || next == StatusSettingUpAsync
	case StatusSettingUpAsync:
		return next == StatusActive || next == StatusRejected
	case StatusActive:
		return next == StatusRemoved
	default:
		return false
	}
}

// Thing is a configured device instance.
type Thing struct {
	ID           string         `json:"id"`
	ThingClassID string         `json:"thingClassId"`
	PluginID     string         `json:"pluginId"`
	Name         string         `json:"name"`
	Params       ParamList      `json:"params"`
	Settings     ParamList      `json:"settings"`
	States       map[string]any `json:"states"`
	ParentID     string         `json:"parentId,omitempty"`
	AutoCreated  bool           `json:"autoCreated"`
	Status       SetupStatus    `json:"setupStatus"`
	SetupError   ThingError     `json:"setupError,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// SetupComplete reports whether the thing is Active.
func (t *Thing) SetupComplete() bool {
	return t.Status == StatusActive
}

// Copy returns an independent copy of t.
func (t *Thing) Copy() Thing {
	cpy := *t
	cpy.Params = t.Params.clone()
	cpy.Settings = t.Settings.clone()
	cpy.States = maps.Clone(t.States)
	return cpy
}
