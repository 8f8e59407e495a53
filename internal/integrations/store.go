package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists configured things so they survive a restart. Runtime
// state values are not persisted; plugins report them again after setup.
type Store interface {
	// List returns every stored thing, parents before children.
	List(ctx context.Context) ([]Thing, error)

	// Save inserts or replaces a thing.
	Save(ctx context.Context, thing *Thing) error

	// Delete removes a thing. Returns ErrThingNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteStore implements Store on the things table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed thing store.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// List returns all things. Roots come first, then children, each group
// in creation order, so a parent is always set up before its children.
func (s *SQLiteStore) List(ctx context.Context) ([]Thing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thing_class_id, plugin_id, name, params, settings,
			parent_id, auto_created, created_at
		FROM things
		ORDER BY parent_id IS NOT NULL, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying things: %w", err)
	}
	defer rows.Close()

	var things []Thing
	for rows.Next() {
		t, err := scanThing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thing: %w", err)
		}
		things = append(things, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating things: %w", err)
	}
	return orderParentsFirst(things), nil
}

// Save upserts thing.
func (s *SQLiteStore) Save(ctx context.Context, thing *Thing) error {
	paramsJSON, err := json.Marshal(nonNil(thing.Params))
	if err != nil {
		return fmt.Errorf("marshalling params: %w", err)
	}
	settingsJSON, err := json.Marshal(nonNil(thing.Settings))
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	if thing.CreatedAt.IsZero() {
		thing.CreatedAt = time.Now().UTC()
	}

	var parentID any
	if thing.ParentID != "" {
		parentID = thing.ParentID
	}
	autoCreated := 0
	if thing.AutoCreated {
		autoCreated = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO things (id, thing_class_id, plugin_id, name, params, settings,
			parent_id, auto_created, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			params = excluded.params,
			settings = excluded.settings`,
		thing.ID, thing.ThingClassID, thing.PluginID, thing.Name,
		string(paramsJSON), string(settingsJSON),
		parentID, autoCreated, thing.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving thing: %w", err)
	}
	return nil
}

// Delete removes the thing with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM things WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting thing: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrThingNotFound
	}
	return nil
}

func scanThing(rows *sql.Rows) (*Thing, error) {
	var t Thing
	var paramsJSON, settingsJSON, createdAt string
	var parentID sql.NullString
	var autoCreated int

	if err := rows.Scan(&t.ID, &t.ThingClassID, &t.PluginID, &t.Name,
		&paramsJSON, &settingsJSON, &parentID, &autoCreated, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &t.Params); err != nil {
		return nil, fmt.Errorf("unmarshalling params: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &t.Settings); err != nil {
		return nil, fmt.Errorf("unmarshalling settings: %w", err)
	}
	if parentID.Valid {
		t.ParentID = parentID.String
	}
	t.AutoCreated = autoCreated != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // format is controlled
	return &t, nil
}

func nonNil(l ParamList) ParamList {
	if l == nil {
		return ParamList{}
	}
	return l
}

// orderParentsFirst sorts things so every parent precedes its children,
// keeping the incoming order otherwise. A thing whose parent is not
// stored is treated as a root.
func orderParentsFirst(things []Thing) []Thing {
	byID := make(map[string]bool, len(things))
	for _, t := range things {
		byID[t.ID] = true
	}

	out := make([]Thing, 0, len(things))
	placed := make(map[string]bool, len(things))
	remaining := things
	for len(remaining) > 0 {
		var next []Thing
		for _, t := range remaining {
			if t.ParentID == "" || placed[t.ParentID] || !byID[t.ParentID] {
				out = append(out, t)
				placed[t.ID] = true
			} else {
				next = append(next, t)
			}
		}
		if len(next) == len(remaining) {
			// Parent cycle; keep stored order.
			out = append(out, next...)
			break
		}
		remaining = next
	}
	return out
}
