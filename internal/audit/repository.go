package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width UTC so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// AuditLog is one audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit logs. Zero fields match everything.
type Filter struct {
	Action     string    // added, removed, changed
	EntityType string    // thing
	EntityID   string    // thing id
	Since      time.Time // entries at or after this instant
	Limit      int       // default 50, max 200
	Offset     int
}

// normalise clamps paging to the supported range.
func (f Filter) normalise() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// where renders the filter as a parameterised WHERE clause.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC().Format(timeLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and queries audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The audit_logs
// migration must already be applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts log, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.CreatedAt = log.CreatedAt.UTC()

	var details sql.NullString
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullString(log.EntityID), nullString(log.UserID),
		log.Source, details, log.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns one page of matching logs, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalise()
	where, args := filter.where()

	res := &ListResult{Logs: []AuditLog{}, Limit: filter.Limit, Offset: filter.Offset}

	//nolint:gosec // where holds only ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}
	if res.Total <= filter.Offset {
		return res, nil
	}

	//nolint:gosec // where holds only ? placeholders
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, entity_type, entity_id, user_id, source, details, created_at
		 FROM audit_logs`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		res.Logs = append(res.Logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return res, nil
}

func scanLog(rows *sql.Rows) (AuditLog, error) {
	var (
		log                       AuditLog
		entityID, userID, details sql.NullString
		createdAt                 string
	)
	if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
		&entityID, &userID, &log.Source, &details, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}
	log.EntityID = entityID.String
	log.UserID = userID.String

	// A corrupt details column loses the details, not the entry.
	if details.Valid && details.String != "" {
		if json.Unmarshal([]byte(details.String), &log.Details) != nil {
			log.Details = nil
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log time %q: %w", createdAt, err)
	}
	log.CreatedAt = t
	return log, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
