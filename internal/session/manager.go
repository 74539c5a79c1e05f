package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/logger"
)

const mirrorQueueSize = 64

// Manager is the single writer of one session. Mutation batches are applied
// atomically and in submission order.
type Manager struct {
	id string

	mu         sync.Mutex
	state      Snapshot
	cancelTurn context.CancelFunc
	turnSeq    uint64
	lastActive time.Time
	closed     bool

	now    func() time.Time
	logger *zap.Logger

	history HistoryStore
	mirror  chan Turn
	done    chan struct{}
}

func newManager(id string, history HistoryStore, now func() time.Time, log *zap.Logger) *Manager {
	created := now()
	m := &Manager{
		id:    id,
		state: Snapshot{
			ID:        id,
			Phase:     NoProfile,
			CreatedAt: created,
			UpdatedAt: created,
		},
		lastActive: created,
		now:        now,
		logger:     log.With(zap.String(logger.FieldSession, id)),
		history:    history,
	}
	if history != nil {
		m.mirror = make(chan Turn, mirrorQueueSize)
		m.done = make(chan struct{})
		go m.runMirror()
	}
	return m
}

// NewManager returns a standalone session without a transcript mirror.
func NewManager(id string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return newManager(id, nil, time.Now, log)
}

func (m *Manager) ID() string {
	return m.id
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Apply applies the batch atomically: either every mutation succeeds or the
// state is left unchanged and an *InvalidMutationError is returned.
func (m *Manager) Apply(muts ...Mutation) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(muts)
}

// ApplyIf applies the batch only if the session is still at the guard's turn
// and active context. Otherwise it returns ErrStale.
func (m *Manager) ApplyIf(g Guard, muts ...Mutation) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Turn != g.Turn || m.state.Active != g.Active {
		m.logger.Debug("discarding stale mutations",
			zap.Uint64("guard_turn", g.Turn),
			zap.Uint64(logger.FieldTurn, m.state.Turn),
			zap.String("guard_capability", g.Active.Capability),
			zap.String("capability", m.state.Active.Capability),
		)
		return m.state.Clone(), ErrStale
	}
	return m.applyLocked(muts)
}

func (m *Manager) applyLocked(muts []Mutation) (Snapshot, error) {
	now := m.now()
	working := m.state.Clone()
	historyLen := len(working.History)

	for _, mut := range muts {
		if err := apply(&working, mut, now); err != nil {
			m.logger.Debug("rejected mutation batch", zap.Error(err), zap.Int("batch", len(muts)))
			return m.state.Clone(), err
		}
	}

	if len(muts) > 0 {
		working.Version++
		working.UpdatedAt = now
	}
	m.state = working
	m.lastActive = now

	for _, turn := range working.History[historyLen:] {
		m.enqueueMirror(turn)
	}

	return m.state.Clone(), nil
}

// BeginTurn records the user message, cancels the context of the previous turn
// if it is still running and returns the context and guard for the new turn.
// The returned cancel func must be called when the turn is done.
func (m *Manager) BeginTurn(ctx context.Context, text string) (context.Context, context.CancelFunc, Guard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.applyLocked([]Mutation{AppendTurn{Turn: Turn{Role: RoleUser, Text: text}}}); err != nil {
		return nil, nil, Guard{}, err
	}

	if m.cancelTurn != nil {
		m.logger.Debug("cancelling previous turn", zap.Uint64(logger.FieldTurn, m.state.Turn-1))
		m.cancelTurn()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	m.turnSeq++
	seq := m.turnSeq
	m.cancelTurn = cancel

	release := func() {
		cancel()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.turnSeq == seq {
			m.cancelTurn = nil
		}
	}

	return turnCtx, release, m.state.Guard(), nil
}

// touch marks the session as active without changing its state.
func (m *Manager) touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActive = m.now()
}

// IdleSince returns the time of the last applied mutation or reopen.
func (m *Manager) IdleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// close cancels the running turn and stops the transcript mirror.
func (m *Manager) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	mirror := m.mirror
	m.mirror = nil
	m.mu.Unlock()

	if mirror != nil {
		close(mirror)
		<-m.done
	}
}

func (m *Manager) enqueueMirror(turn Turn) {
	if m.mirror == nil {
		return
	}
	select {
	case m.mirror <- turn:
	default:
		m.logger.Warn("transcript mirror queue is full, dropping turn")
	}
}

// runMirror writes transcript turns to the history store in order, outside the session lock.
func (m *Manager) runMirror() {
	defer close(m.done)
	for turn := range m.mirror {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.history.Append(ctx, m.id, turn); err != nil {
			m.logger.Warn("mirroring transcript turn failed", zap.Error(err))
		}
		cancel()
	}
}
