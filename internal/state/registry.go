package state

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// Registry owns one Session per user address.
type Registry struct {
	reader domain.VaultReader
	token  domain.TokenClient
	cfg    SessionConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(reader domain.VaultReader, token domain.TokenClient, cfg SessionConfig, logger *slog.Logger) *Registry {
	cfg.setDefaults()
	return &Registry{
		reader:   reader,
		token:    token,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for user, creating it on first use, and marks it
// used. Addresses are compared case-insensitively.
func (r *Registry) Get(user string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getLocked(user)
	s.Touch()
	return s
}

func (r *Registry) getLocked(user string) *Session {
	key := strings.ToLower(user)
	s, ok := r.sessions[key]
	if !ok {
		s = NewSession(user, r.reader, r.token, r.cfg, r.logger)
		r.sessions[key] = s
	}
	return s
}

// Follow registers a live consumer of user's session, such as a WebSocket
// client. The session is not evicted and may run its projection ticker
// while followed. release must be called when the consumer goes away.
func (r *Registry) Follow(user string) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(user).follow()
}

// Followed returns the users whose sessions have at least one follower.
func (r *Registry) Followed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sessions {
		if s.Followed() {
			out = append(out, s.User())
		}
	}
	return out
}

// Evict closes and forgets every unfollowed session not used within idle,
// returning how many were removed.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.cfg.Clock().Add(-idle)
	var stale []*Session

	r.mu.Lock()
	for key, s := range r.sessions {
		if s.idleSince(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		r.logger.Debug("idle sessions evicted", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(user string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[strings.ToLower(user)]
	return s, ok
}

// All returns every session.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Close closes and forgets every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
