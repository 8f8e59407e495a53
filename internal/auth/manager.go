package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTokenTTL is used when Options.TokenTTL is zero.
const DefaultTokenTTL = 365 * 24 * time.Hour

// TokenValidator checks the token presented with a JSON-RPC call.
//
// Both methods are answered from memory and are cheap enough to run on
// the event loop for every call.
type TokenValidator interface {
	// HasUsers reports whether any user account exists.
	HasUsers() bool
	// ValidateToken verifies a raw token and returns who it belongs to.
	ValidateToken(token string) (Identity, error)
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	Logger   Logger
}

// Manager owns users and session tokens.
//
// Database-backed methods (CreateUser, Authenticate, Tokens, RemoveToken)
// block and hash passwords, so callers run them off the event loop.
// HasUsers and ValidateToken read an in-memory cache kept in step with
// the database.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	users  UserRepository
	tokens TokenRepository
	secret []byte
	ttl    time.Duration
	logger Logger

	mu       sync.RWMutex
	hasUsers bool
	live     map[string]TokenInfo // by token hash
}

// NewManager creates a Manager. Call Load before serving clients.
func NewManager(users UserRepository, tokens TokenRepository, opts Options) *Manager {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		users:  users,
		tokens: tokens,
		secret: opts.Secret,
		ttl:    ttl,
		logger: logger,
		live:   make(map[string]TokenInfo),
	}
}

// Load prunes expired tokens and fills the cache from the database.
func (m *Manager) Load(ctx context.Context) error {
	if n, err := m.tokens.DeleteExpired(ctx); err != nil {
		return err
	} else if n > 0 {
		m.logger.Info("expired session tokens removed", "count", n)
	}

	count, err := m.users.Count(ctx)
	if err != nil {
		return err
	}
	active, err := m.tokens.ListActive(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.hasUsers = count > 0
	m.live = make(map[string]TokenInfo, len(active))
	for _, t := range active {
		m.live[t.TokenHash] = t
	}
	m.mu.Unlock()

	m.logger.Info("auth state loaded", "users", count, "tokens", len(active))
	return nil
}

// HasUsers implements TokenValidator.
func (m *Manager) HasUsers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasUsers
}

// ValidateToken implements TokenValidator. The signature and expiry are
// checked first, then the token must still be on record.
func (m *Manager) ValidateToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenInvalid
	}
	claims, err := ParseToken(token, m.secret)
	if err != nil {
		return Identity{}, err
	}

	m.mu.RLock()
	info, ok := m.live[HashToken(token)]
	m.mu.RUnlock()
	if !ok || info.ID != claims.ID {
		return Identity{}, ErrTokenNotFound
	}
	return Identity{Username: info.Username, TokenID: info.ID}, nil
}

// CreateUser adds an account after checking username and password rules.
func (m *Manager) CreateUser(ctx context.Context, username, password string) error {
	if !IsValidUsername(username) {
		return ErrInvalidUsername
	}
	if !IsValidPassword(password) {
		return ErrBadPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := m.users.Create(ctx, &User{Username: username, PasswordHash: hash}); err != nil {
		return err
	}

	m.mu.Lock()
	m.hasUsers = true
	m.mu.Unlock()

	m.logger.Info("user created", "username", username)
	return nil
}

// Authenticate checks the password and issues a session token for the
// named device. Unknown users and wrong passwords both return
// ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, username, password, deviceName string) (string, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.logger.Warn("authentication failed", "username", username, "reason", "unknown user")
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		m.logger.Warn("authentication failed", "username", username, "reason", "bad password")
		return "", ErrInvalidCredentials
	}

	raw, claims, err := IssueToken(user.Username, deviceName, m.secret, m.ttl)
	if err != nil {
		return "", err
	}
	info := TokenInfo{
		ID:         claims.ID,
		Username:   user.Username,
		DeviceName: deviceName,
		TokenHash:  HashToken(raw),
		CreatedAt:  claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if err := m.tokens.Create(ctx, &info); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.live[info.TokenHash] = info
	m.mu.Unlock()

	m.logger.Info("session token issued", "username", user.Username, "device", deviceName, "token_id", info.ID)
	return raw, nil
}

// Tokens lists the tokens issued to username.
func (m *Manager) Tokens(ctx context.Context, username string) ([]TokenInfo, error) {
	return m.tokens.ListByUser(ctx, username)
}

// RemoveToken revokes one of username's tokens. A token of another user
// is reported as ErrTokenNotFound.
func (m *Manager) RemoveToken(ctx context.Context, username, tokenID string) error {
	info, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if info.Username != username {
		return ErrTokenNotFound
	}
	if err := m.tokens.Delete(ctx, tokenID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.live, info.TokenHash)
	m.mu.Unlock()

	m.logger.Info("session token removed", "username", username, "token_id", tokenID)
	return nil
}
