package session

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Methods callable without a token while no user exists.
var setupMethods = map[string]struct{}{
	"JSONRPC.Hello":      {},
	"JSONRPC.Introspect": {},
	"JSONRPC.CreateUser": {},
}

// Methods callable without a token once users exist.
var loginMethods = map[string]struct{}{
	"JSONRPC.Hello":        {},
	"JSONRPC.Introspect":   {},
	"JSONRPC.Authenticate": {},
}

// Logger is the logging surface the registry needs.
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

// Options configures a Registry.
type Options struct {
	// AuthenticationRequired enables token checks in Authorize.
	AuthenticationRequired bool
	// Validator checks tokens. Required when AuthenticationRequired.
	Validator auth.TokenValidator

	// RequestsPerMinute and Burst bound each session's call rate.
	// Zero RequestsPerMinute disables rate limiting.
	RequestsPerMinute int
	Burst             int

	Logger Logger
}

// Registry maps client ids to sessions and routes outbound bytes to the
// right transport.
//
// Every live session belongs to exactly one transport connection; the
// registry never branches on which transport that is.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Session fields are only
//     mutated on the event loop.
type Registry struct {
	opts   Options
	logger Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// SetLogger replaces the registry's logger.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RegisterClient creates the session for a newly connected client.
// Registering an id twice replaces the old session.
func (r *Registry) RegisterClient(t transport.Transport, clientID string) *Session {
	s := &Session{
		ID:          clientID,
		Transport:   t,
		ConnectedAt: time.Now(),
		namespaces:  make(map[string]struct{}),
	}
	if r.opts.RequestsPerMinute > 0 {
		burst := r.opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(float64(r.opts.RequestsPerMinute)/60), burst)
	}

	r.mu.Lock()
	if _, exists := r.sessions[clientID]; exists {
		r.logger.Warn("client id registered twice, replacing session", "client_id", clientID)
	}
	r.sessions[clientID] = s
	r.mu.Unlock()

	r.logger.Debug("session registered", "client_id", clientID, "transport", t.Name())
	return s
}

// UnregisterClient destroys a session. It reports whether one existed.
func (r *Registry) UnregisterClient(clientID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[clientID]
	delete(r.sessions, clientID)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("session unregistered", "client_id", clientID)
	}
	return ok
}

// Get returns the session of clientID.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// TransportFor returns the transport serving clientID.
func (r *Registry) TransportFor(clientID string) (transport.Transport, bool) {
	s, ok := r.Get(clientID)
	if !ok {
		return nil, false
	}
	return s.Transport, true
}

// Send writes data to one client. Data for a departed client is dropped.
func (r *Registry) Send(clientID string, data []byte) {
	t, ok := r.TransportFor(clientID)
	if !ok {
		r.logger.Debug("dropping message for departed client", "client_id", clientID)
		return
	}
	t.Send(clientID, data)
}

// Broadcast writes data to several clients, one SendMulti per transport.
func (r *Registry) Broadcast(clientIDs []string, data []byte) {
	groups := make(map[transport.Transport][]string)
	var order []transport.Transport

	r.mu.RLock()
	for _, id := range clientIDs {
		s, ok := r.sessions[id]
		if !ok {
			continue
		}
		if _, seen := groups[s.Transport]; !seen {
			order = append(order, s.Transport)
		}
		groups[s.Transport] = append(groups[s.Transport], id)
	}
	r.mu.RUnlock()

	for _, t := range order {
		t.SendMulti(groups[t], data)
	}
}

// Terminate asks the client's transport to flush and close the connection.
func (r *Registry) Terminate(clientID string) {
	if t, ok := r.TransportFor(clientID); ok {
		t.Terminate(clientID)
	}
}

// Subscribers returns the ids of sessions subscribed to namespace.
func (r *Registry) Subscribers(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if s.Subscribed(namespace) {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetNotificationNamespaces replaces the client's subscriptions.
func (r *Registry) SetNotificationNamespaces(clientID string, namespaces []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	s.namespaces = make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		s.namespaces[ns] = struct{}{}
	}
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountByTransport returns live sessions per transport name.
func (r *Registry) CountByTransport() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, s := range r.sessions {
		counts[s.Transport.Name()]++
	}
	return counts
}

// AuthenticationRequired reports whether Authorize checks tokens.
func (r *Registry) AuthenticationRequired() bool {
	return r.opts.AuthenticationRequired
}

// Authorize decides whether sess may call method with token.
//
// Without authentication everything is allowed. Otherwise a small set of
// methods is exempt (Hello, Introspect, plus CreateUser before the first
// user exists or Authenticate afterwards) and every other call needs a
// valid token. A valid token is recorded on the session.
func (r *Registry) Authorize(sess *Session, method, token string) error {
	if !r.opts.AuthenticationRequired {
		return nil
	}

	exempt := loginMethods
	if !r.opts.Validator.HasUsers() {
		exempt = setupMethods
	}
	if _, ok := exempt[method]; ok {
		return nil
	}

	id, err := r.opts.Validator.ValidateToken(token)
	if err != nil {
		r.logger.Debug("call rejected", "client_id", sess.ID, "method", method, "reason", err)
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	sess.Identity = &id
	return nil
}
