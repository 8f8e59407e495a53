package integrations

import "time"

// HistoryWriter records state and event history. *influxdb.Client
// satisfies it; its writes are non-blocking.
type HistoryWriter interface {
	WriteThingState(thingID, thingClassID, stateTypeID string, value any, ts time.Time)
	WriteThingEvent(thingID, thingClassID, eventTypeID string, params map[string]any, ts time.Time)
}

// HistoryObserver logs every state change and event to a HistoryWriter.
type HistoryObserver struct {
	NopObserver
	writer HistoryWriter
	now    func() time.Time
}

// NewHistoryObserver creates a history observer writing to w.
func NewHistoryObserver(w HistoryWriter) *HistoryObserver {
	return &HistoryObserver{writer: w, now: time.Now}
}

// StateChanged implements Observer.
func (h *HistoryObserver) StateChanged(thing Thing, stateTypeID string, value any) {
	h.writer.WriteThingState(thing.ID, thing.ThingClassID, stateTypeID, value, h.now())
}

// EventTriggered implements Observer.
func (h *HistoryObserver) EventTriggered(thing Thing, event Event) {
	h.writer.WriteThingEvent(thing.ID, thing.ThingClassID, event.EventTypeID, event.Params.Map(), event.Timestamp)
}
