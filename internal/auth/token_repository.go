package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// TokenRepository persists issued session tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *TokenInfo) error
	GetByID(ctx context.Context, id string) (*TokenInfo, error)
	ListByUser(ctx context.Context, username string) ([]TokenInfo, error)
	ListActive(ctx context.Context) ([]TokenInfo, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository on the tokens table.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken returns the hex SHA-256 of a raw token. Only hashes are stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const tokenColumns = `id, username, device_name, token_hash, created_at, expires_at`

// Create inserts a token record.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *TokenInfo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID, token.Username, token.DeviceName, token.TokenHash,
		token.CreatedAt.UTC().Format(time.RFC3339),
		token.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating token: %w", err)
	}
	return nil
}

// GetByID returns ErrTokenNotFound for unknown ids.
func (r *SQLiteTokenRepository) GetByID(ctx context.Context, id string) (*TokenInfo, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return t, err
}

// ListByUser returns a user's tokens, newest first.
func (r *SQLiteTokenRepository) ListByUser(ctx context.Context, username string) ([]TokenInfo, error) {
	return r.list(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE username = ? ORDER BY created_at DESC`, username)
}

// ListActive returns every token that has not expired.
func (r *SQLiteTokenRepository) ListActive(ctx context.Context) ([]TokenInfo, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.list(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE expires_at > ?`, now)
}

// Delete removes one token.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrTokenNotFound
	}
	return nil
}

// DeleteExpired removes expired tokens and returns how many went.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

func (r *SQLiteTokenRepository) list(ctx context.Context, query string, args ...any) ([]TokenInfo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	tokens := []TokenInfo{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}
	return tokens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*TokenInfo, error) {
	var t TokenInfo
	var createdAt, expiresAt string
	if err := s.Scan(&t.ID, &t.Username, &t.DeviceName, &t.TokenHash, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning token: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	return &t, nil
}
