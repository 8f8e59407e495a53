package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

type memRepo struct {
	mu   sync.Mutex
	logs []*AuditLog
}

func (m *memRepo) Create(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (m *memRepo) snapshot() []*AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AuditLog(nil), m.logs...)
}

func TestRecorder(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, nil)

	var _ integrations.Observer = rec

	thing := integrations.Thing{
		ID: "t1", ThingClassID: "c1", PluginID: "p1", Name: "Lamp",
		Status: integrations.StatusActive,
	}
	rec.ThingAdded(thing)
	thing.Name = "Desk lamp"
	rec.ThingChanged(thing)
	rec.ThingRemoved("t1")
	rec.StateChanged(thing, "power", true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(repo.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	logs := repo.snapshot()
	if len(logs) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(logs))
	}
	want := []string{ActionAdded, ActionChanged, ActionRemoved}
	for i, l := range logs {
		if l.Action != want[i] || l.EntityID != "t1" || l.EntityType != EntityThing || l.Source != SourceRuntime {
			t.Errorf("log[%d] = %+v", i, l)
		}
	}
	if logs[1].Details["name"] != "Desk lamp" || logs[1].Details["pluginId"] != "p1" {
		t.Errorf("changed details = %v", logs[1].Details)
	}
	if logs[2].Details != nil {
		t.Errorf("removed details = %v, want nil", logs[2].Details)
	}
}

func TestRecorder_QueueFull(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, nil)
	for i := 0; i < recordQueueSize+10; i++ {
		rec.ThingRemoved("t")
	}
	if got := len(rec.queue); got != recordQueueSize {
		t.Errorf("queue length = %d, want %d", got, recordQueueSize)
	}
}
