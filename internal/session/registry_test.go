package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistryOpen(t *testing.T) {
	r := NewRegistry(time.Minute, zap.NewNop())

	m, created := r.Open("")
	if !created {
		t.Fatalf("expected a new session")
	}
	if _, err := uuid.Parse(m.ID()); err != nil {
		t.Fatalf("expected a uuid session id, got %q", m.ID())
	}

	again, created := r.Open(m.ID())
	if created || again != m {
		t.Fatalf("expected the existing session")
	}

	other, created := r.Open("")
	if !created || other.ID() == m.ID() {
		t.Fatalf("expected an independent session")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	a, _ := r.Open("a")
	b, _ := r.Open("b")

	if _, err := a.Apply(SetProfile{Profile: testProfile()}, SetResults{Results: testResults("1")}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	snap := b.Snapshot()
	if snap.HasProfile() || snap.LastResults != nil || snap.Version != 0 {
		t.Fatalf("session b changed: %+v", snap)
	}
}

func TestRegistryReapsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	history := NewMemoryHistory(time.Minute)
	history.now = clock.Now
	r := NewRegistry(time.Minute, nil, WithClock(clock.Now), WithHistory(history))

	idle, _ := r.Open("idle")
	busy, _ := r.Open("busy")
	if _, err := idle.Apply(userTurn("hello")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	turnCtx, release, _, err := idle.BeginTurn(context.Background(), "search")
	if err != nil {
		t.Fatalf("begin turn: %v", err)
	}
	defer release()

	clock.Advance(45 * time.Second)
	if _, err := busy.Apply(userTurn("still here")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clock.Advance(30 * time.Second)

	if n := r.Reap(context.Background()); n != 1 {
		t.Fatalf("expected 1 reaped session, got %d", n)
	}
	if _, ok := r.Get("idle"); ok {
		t.Fatalf("expected idle session to be gone")
	}
	if _, ok := r.Get("busy"); !ok {
		t.Fatalf("expected busy session to stay")
	}
	if turnCtx.Err() == nil {
		t.Fatalf("expected the running turn of a closed session to be cancelled")
	}

	turns, err := history.Load(context.Background(), "idle")
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected idle transcript to be cleared, got %v (%v)", turns, err)
	}
}

func TestRegistryReopenKeepsSessionAlive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(time.Minute, nil, WithClock(clock.Now))

	m, _ := r.Open("s1")
	if _, err := m.Apply(userTurn("hello")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clock.Advance(2 * time.Minute)

	again, created := r.Open("s1")
	if created || again != m {
		t.Fatalf("expected the existing session")
	}
	if n := r.Reap(context.Background()); n != 0 {
		t.Fatalf("expected a reopened session to survive, reaped %d", n)
	}
	turnCtx, release, _, err := again.BeginTurn(context.Background(), "search")
	if err != nil {
		t.Fatalf("begin turn: %v", err)
	}
	defer release()
	if turnCtx.Err() != nil {
		t.Fatalf("turn of a live session was cancelled")
	}

	clock.Advance(2 * time.Minute)
	if n := r.Reap(context.Background()); n != 1 {
		t.Fatalf("expected 1 reaped session, got %d", n)
	}
	fresh, created := r.Open("s1")
	if !created || fresh == m {
		t.Fatalf("expected a new session after reaping")
	}
	if fresh.Snapshot().Version != 0 {
		t.Fatalf("new session carries old state")
	}
}

func TestTranscriptMirror(t *testing.T) {
	history := NewMemoryHistory(0)
	r := NewRegistry(time.Minute, nil, WithHistory(history))
	m, _ := r.Open("s1")

	if _, err := m.Apply(userTurn("A"), AppendTurn{Turn: Turn{Role: RoleAssistant, Text: "B"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := m.Apply(userTurn("C")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A rejected batch must not reach the mirror.
	if _, err := m.Apply(userTurn("D"), SetResults{}); err == nil {
		t.Fatalf("expected an error")
	}

	// close flushes the mirror before returning.
	m.close()
	turns, err := history.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 3 || turns[0].Text != "A" || turns[1].Text != "B" || turns[2].Text != "C" {
		t.Fatalf("unexpected mirrored turns %+v", turns)
	}

	if err := r.Close(context.Background(), "s1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if turns, _ := history.Load(context.Background(), "s1"); len(turns) != 0 {
		t.Fatalf("expected transcript to be cleared on close, got %+v", turns)
	}
}

func TestMemoryHistoryExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := NewMemoryHistory(time.Minute)
	h.now = clock.Now
	ctx := context.Background()

	if err := h.Append(ctx, "s", Turn{Role: RoleUser, Text: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clock.Advance(59 * time.Second)
	if turns, _ := h.Load(ctx, "s"); len(turns) != 1 {
		t.Fatalf("expected the turn before expiry, got %d", len(turns))
	}
	clock.Advance(time.Second)
	if turns, _ := h.Load(ctx, "s"); len(turns) != 0 {
		t.Fatalf("expected expiry, got %d turns", len(turns))
	}
}

func TestRedisHistory(t *testing.T) {
	url := os.Getenv("CAREER_ASSISTANT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CAREER_ASSISTANT_TEST_REDIS_URL is not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	h, err := NewRedisHistory(client, "career-assistant-test:", time.Minute)
	if err != nil {
		t.Fatalf("new history: %v", err)
	}
	id := uuid.NewString()
	defer h.Clear(ctx, id)

	for _, text := range []string{"A", "B"} {
		if err := h.Append(ctx, id, Turn{Role: RoleUser, Text: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	turns, err := h.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 2 || turns[0].Text != "A" || turns[1].Text != "B" {
		t.Fatalf("unexpected turns %+v", turns)
	}

	ttl, err := client.TTL(ctx, h.key(id)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected a ttl within a minute, got %v (%v)", ttl, err)
	}

	if err := h.Clear(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if turns, _ := h.Load(ctx, id); len(turns) != 0 {
		t.Fatalf("expected no turns after clear, got %d", len(turns))
	}
}

func TestNewRedisHistoryNeedsClient(t *testing.T) {
	if _, err := NewRedisHistory(nil, "", time.Minute); err == nil {
		t.Fatalf("expected an error")
	}
}
