package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-32b")

// testDB opens a migrated SQLite database in a temp directory.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
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
	return db
}

// testManager returns a loaded Manager on a fresh database.
func testManager(t *testing.T) *Manager {
	t.Helper()
	db := testDB(t)
	m := NewManager(NewUserRepository(db.DB), NewTokenRepository(db.DB), Options{Secret: testSecret})
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}
