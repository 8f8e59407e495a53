package session

import (
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Session is the server-side state of one connected client.
//
// Sessions are created and destroyed only by the Registry. Fields are
// read and written on the event loop.
type Session struct {
	// ID is the client id assigned by the transport.
	ID string
	// Transport is the connection's transport. Not owned by the session.
	Transport transport.Transport

	ConnectedAt time.Time
	Locale      string

	// HelloDone records that the client completed JSONRPC.Hello.
	HelloDone bool
	// Identity is set once a call carried a valid token.
	Identity *auth.Identity

	namespaces map[string]struct{}
	limiter    *rate.Limiter
}

// Subscribed reports whether the session receives notifications of namespace.
func (s *Session) Subscribed(namespace string) bool {
	_, ok := s.namespaces[namespace]
	return ok
}

// Namespaces returns the subscribed notification namespaces, sorted.
func (s *Session) Namespaces() []string {
	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Allow consumes one call from the session's rate budget.
func (s *Session) Allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// Username returns the authenticated user, or "".
func (s *Session) Username() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Username
}
