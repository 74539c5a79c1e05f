package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// HistoryStore mirrors session transcripts outside the process. Entries expire
// with the session idle timeout and are removed when the session closes.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Load(ctx context.Context, sessionID string) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	turns     []Turn
	expiresAt time.Time
}

// MemoryHistory keeps transcripts in process memory.
type MemoryHistory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*memoryEntry
}

// NewMemoryHistory returns a store whose entries expire ttl after their last append.
// A zero ttl keeps entries until Clear.
func NewMemoryHistory(ttl time.Duration) *MemoryHistory {
	return &MemoryHistory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

func (h *MemoryHistory) Append(_ context.Context, sessionID string, turn Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[sessionID]
	if !ok || h.expired(entry) {
		entry = &memoryEntry{}
		h.entries[sessionID] = entry
	}
	entry.turns = append(entry.turns, turn)
	if h.ttl > 0 {
		entry.expiresAt = h.now().Add(h.ttl)
	}
	return nil
}

func (h *MemoryHistory) Load(_ context.Context, sessionID string) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[sessionID]
	if !ok {
		return []Turn{}, nil
	}
	if h.expired(entry) {
		delete(h.entries, sessionID)
		return []Turn{}, nil
	}
	return slices.Clone(entry.turns), nil
}

func (h *MemoryHistory) Clear(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, sessionID)
	return nil
}

func (h *MemoryHistory) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !h.now().Before(entry.expiresAt)
}
