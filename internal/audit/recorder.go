package audit

import (
	"context"

	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Actions recorded for things.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionChanged = "changed"

	EntityThing = "thing"

	// SourceRuntime marks entries produced by the integrations runtime.
	SourceRuntime = "runtime"
)

const recordQueueSize = 128

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder is an integrations.Observer that writes thing lifecycle
// changes to a Repository. Callbacks only enqueue; Run drains the
// queue. A full queue drops the entry and logs it.
type Recorder struct {
	integrations.NopObserver

	repo   Repository
	logger Logger
	queue  chan *AuditLog
}

// NewRecorder creates a recorder writing to repo. A nil logger discards.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, recordQueueSize),
	}
}

// Run writes queued entries until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-r.queue:
			if err := r.repo.Create(ctx, entry); err != nil {
				r.logger.Warn("writing audit log failed", "action", entry.Action, "entity_id", entry.EntityID, "error", err)
			}
		}
	}
}

// ThingAdded implements integrations.Observer.
func (r *Recorder) ThingAdded(thing integrations.Thing) {
	r.enqueue(ActionAdded, thing.ID, thingDetails(thing))
}

// ThingChanged implements integrations.Observer.
func (r *Recorder) ThingChanged(thing integrations.Thing) {
	r.enqueue(ActionChanged, thing.ID, thingDetails(thing))
}

// ThingRemoved implements integrations.Observer.
func (r *Recorder) ThingRemoved(thingID string) {
	r.enqueue(ActionRemoved, thingID, nil)
}

func (r *Recorder) enqueue(action, thingID string, details map[string]any) {
	entry := &AuditLog{
		Action:     action,
		EntityType: EntityThing,
		EntityID:   thingID,
		Source:     SourceRuntime,
		Details:    details,
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, entry dropped", "action", action, "entity_id", thingID)
	}
}

func thingDetails(thing integrations.Thing) map[string]any {
	d := map[string]any{
		"name":         thing.Name,
		"thingClassId": thing.ThingClassID,
		"pluginId":     thing.PluginID,
		"setupStatus":  thing.Status.String(),
	}
	if thing.ParentID != "" {
		d["parentId"] = thing.ParentID
	}
	if thing.SetupError != "" {
		d["setupError"] = string(thing.SetupError)
	}
	return d
}
