package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultIdleTimeout = 30 * time.Minute

// Registry owns the live sessions. Sessions share no state with each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Manager

	idle    time.Duration
	history HistoryStore
	now     func() time.Time
	logger  *zap.Logger
}

type RegistryOption func(*Registry)

// WithHistory mirrors every session transcript to store.
func WithHistory(store HistoryStore) RegistryOption {
	return func(r *Registry) {
		r.history = store
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(idle time.Duration, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		sessions: make(map[string]*Manager),
		idle:     idle,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the session with the given id, creating it when needed.
// An empty id always creates a new session with a random id.
func (r *Registry) Open(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if m, ok := r.sessions[id]; ok {
			m.touch()
			return m, false
		}
	} else {
		id = uuid.NewString()
	}

	m := newManager(id, r.history, r.now, r.logger)
	r.sessions[id] = m
	r.logger.Debug("session opened", zap.String("session_id", id))
	return m, true
}

func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[id]
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close ends a session: its running turn is cancelled and its mirrored transcript removed.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	m, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.finish(ctx, m)
}

func (r *Registry) finish(ctx context.Context, m *Manager) error {
	m.close()
	r.logger.Debug("session closed", zap.String("session_id", m.ID()))
	if r.history != nil {
		return r.history.Clear(ctx, m.ID())
	}
	return nil
}

// Reap closes sessions idle for longer than the idle timeout and returns how many were closed.
// Expired sessions are removed in the same critical section that checks them.
func (r *Registry) Reap(ctx context.Context) int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Manager
	for id, m := range r.sessions {
		if m.IdleSince().Before(cutoff) {
			expired = append(expired, m)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, m := range expired {
		if err := r.finish(ctx, m); err != nil {
			r.logger.Warn("closing idle session failed", zap.String("session_id", m.ID()), zap.Error(err))
		}
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is done, then closes the rest.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idle / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll(context.Background())
			return
		case <-ticker.C:
			if n := r.Reap(ctx); n > 0 {
				r.logger.Info("reaped idle sessions", zap.Int("count", n))
			}
		}
	}
}

// CloseAll ends every session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Close(ctx, id); err != nil {
			r.logger.Warn("closing session failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}
