package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementThingState = "thing_state"
	MeasurementThingEvent = "thing_event"
)

// WriteThingState records one state value.
//
// Tags: thing_id, thing_class_id, state_type_id. The value lands in a
// field named after its kind (see fieldFor) so numeric history stays
// queryable as numbers.
func (c *Client) WriteThingState(thingID, thingClassID, stateTypeID string, value any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	name, v := fieldFor(value)
	c.writeAPI.WritePoint(write.NewPoint(MeasurementThingState,
		map[string]string{
			"thing_id":       thingID,
			"thing_class_id": thingClassID,
			"state_type_id":  stateTypeID,
		},
		map[string]any{name: v},
		ts))
}

// WriteThingEvent records one event occurrence with its params as JSON.
func (c *Client) WriteThingEvent(thingID, thingClassID, eventTypeID string, params map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte("{}")
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementThingEvent,
		map[string]string{
			"thing_id":       thingID,
			"thing_class_id": thingClassID,
			"event_type_id":  eventTypeID,
		},
		map[string]any{"params": string(encoded)},
		ts))
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// fieldFor picks the field name and line-protocol value for a state value.
// Numbers go to "value", booleans to "bool_value", everything else is
// stored as a string in "string_value".
func fieldFor(value any) (string, any) {
	switch v := value.(type) {
	case bool:
		return "bool_value", v
	case float64:
		return "value", v
	case float32:
		return "value", float64(v)
	case int:
		return "value", float64(v)
	case int64:
		return "value", float64(v)
	case uint:
		return "value", float64(v)
	case uint64:
		return "value", float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return "value", f
		}
		return "string_value", v.String()
	case string:
		return "string_value", v
	case nil:
		return "string_value", ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "string_value", ""
		}
		return "string_value", string(b)
	}
}
