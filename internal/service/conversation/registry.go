package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry maps live connections to their sessions. It is the only owner of
// the mapping; sessions never outlive their Close call.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry bootstraps an empty in-memory registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for a newly established connection.
func (r *Registry) Open(ctx context.Context) *Session {
	session := newSession(uuid.NewString(), r.deps)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	r.deps.Metrics.SessionOpened(ctx)
	slog.Info("Conversation session opened", "session", session.ID())
	return session
}

// Get retrieves a session by identifier.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close discards the session bound to a closed connection.
func (r *Registry) Close(ctx context.Context, id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.deps.Metrics.SessionClosed(ctx)
	slog.Info("Conversation session closed", "session", id)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
