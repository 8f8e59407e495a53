package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	entries := []*AuditLog{
		{Action: ActionAdded, EntityType: EntityThing, EntityID: "t1", Source: SourceRuntime, CreatedAt: base,
			Details: map[string]any{"name": "Lamp"}},
		{Action: ActionChanged, EntityType: EntityThing, EntityID: "t1", Source: SourceRuntime, CreatedAt: base.Add(time.Minute)},
		{Action: ActionAdded, EntityType: EntityThing, EntityID: "t2", Source: SourceRuntime, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Create() did not assign an id")
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Logs) != 3 || all.Limit != 50 {
		t.Fatalf("List() = total %d, %d logs, limit %d", all.Total, len(all.Logs), all.Limit)
	}
	if all.Logs[0].EntityID != "t2" {
		t.Errorf("first log = %q, want newest (t2)", all.Logs[0].EntityID)
	}
	oldest := all.Logs[2]
	if oldest.Details["name"] != "Lamp" || !oldest.CreatedAt.Equal(base) {
		t.Errorf("oldest = %+v", oldest)
	}

	tests := []struct {
		name   string
		filter Filter
		total  int
		logs   int
	}{
		{"by entity", Filter{EntityID: "t1"}, 2, 2},
		{"by action", Filter{Action: ActionAdded}, 2, 2},
		{"both", Filter{Action: ActionChanged, EntityID: "t1"}, 1, 1},
		{"paged", Filter{Limit: 1, Offset: 1}, 3, 1},
		{"since", Filter{Since: base.Add(time.Minute)}, 2, 2},
		{"past the end", Filter{Offset: 5}, 3, 0},
		{"no match", Filter{EntityType: "user"}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total || len(res.Logs) != tt.logs {
				t.Errorf("List() = total %d, %d logs; want %d, %d", res.Total, len(res.Logs), tt.total, tt.logs)
			}
			if res.Logs == nil {
				t.Error("Logs is nil, want empty slice")
			}
		})
	}
}

func TestRepository_ClampsLimit(t *testing.T) {
	repo := testRepo(t)
	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != 200 || res.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want 200/0", res.Limit, res.Offset)
	}
}
