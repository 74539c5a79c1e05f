package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errLimited = errors.New("limited")
	errSlow    = errors.New("slow")
	errBroken  = errors.New("broken")
)

func classify(err error) (Class, time.Duration) {
	switch {
	case errors.Is(err, errLimited):
		return RateLimited, 0
	case errors.Is(err, errSlow), errors.Is(err, context.DeadlineExceeded):
		return Timeout, 0
	default:
		return Fatal, 0
	}
}

func stubWait(t *testing.T) *[]time.Duration {
	t.Helper()
	original := wait
	waits := &[]time.Duration{}
	wait = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	t.Cleanup(func() { wait = original })
	return waits
}

func TestDoRetriesOnceByClass(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
		wantWaits int
	}{
		{name: "success", errs: []error{nil}, wantCalls: 1},
		{name: "rate limited then ok", errs: []error{errLimited, nil}, wantCalls: 2, wantWaits: 1},
		{name: "rate limited twice", errs: []error{errLimited, errLimited}, wantCalls: 2, wantErr: errLimited, wantWaits: 1},
		{name: "timeout then ok", errs: []error{errSlow, nil}, wantCalls: 2},
		{name: "timeout twice", errs: []error{errSlow, errSlow, nil}, wantCalls: 2, wantErr: errSlow},
		{name: "fatal is not retried", errs: []error{errBroken, nil}, wantCalls: 1, wantErr: errBroken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waits := stubWait(t)

			calls := 0
			got, err := Do(context.Background(), DefaultPolicy(), time.Second, classify, func(context.Context) (string, error) {
				err := tt.errs[calls]
				calls++
				if err != nil {
					return "", err
				}
				return "ok", nil
			})

			if calls != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && got != "ok" {
				t.Fatalf("unexpected result %q", got)
			}
			if len(*waits) != tt.wantWaits {
				t.Fatalf("expected %d waits, got %d", tt.wantWaits, len(*waits))
			}
		})
	}
}

func TestDoShortensTimeoutOnRetry(t *testing.T) {
	var deadlines []time.Duration
	_, err := Do(context.Background(), Policy{TimeoutFactor: 0.5}, 4*time.Second, classify, func(ctx context.Context) (int, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("expected attempt deadline")
		}
		deadlines = append(deadlines, time.Until(deadline).Round(time.Second))
		return 0, errSlow
	})

	if !errors.Is(err, errSlow) {
		t.Fatalf("expected errSlow, got %v", err)
	}
	if len(deadlines) != 2 || deadlines[0] != 4*time.Second || deadlines[1] != 2*time.Second {
		t.Fatalf("unexpected attempt timeouts: %v", deadlines)
	}
}

func TestDoBoundsBlockingCall(t *testing.T) {
	start := time.Now()
	calls := 0
	_, err := Do(context.Background(), DefaultPolicy(), 40*time.Millisecond, classify, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("call was not bounded: %v", elapsed)
	}
}

func TestDoSkipsRetryWhenServerAsksTooLong(t *testing.T) {
	waits := stubWait(t)

	calls := 0
	_, err := Do(context.Background(), Policy{Backoff: time.Second, MaxBackoff: 5 * time.Second}, 0,
		func(error) (Class, time.Duration) { return RateLimited, time.Minute },
		func(context.Context) (int, error) {
			calls++
			return 0, errLimited
		})

	if !errors.Is(err, errLimited) {
		t.Fatalf("expected errLimited, got %v", err)
	}
	if calls != 1 || len(*waits) != 0 {
		t.Fatalf("expected a single call without waiting, got calls=%d waits=%v", calls, *waits)
	}
}

func TestDoUsesServerDelay(t *testing.T) {
	waits := stubWait(t)

	notified := 0
	policy := Policy{Backoff: time.Second, MaxBackoff: time.Minute}
	policy.Notify = func(class Class, delay time.Duration, _ error) {
		notified++
		if class != RateLimited || delay != 7*time.Second {
			t.Fatalf("unexpected notification: %s %v", class, delay)
		}
	}

	calls := 0
	_, _ = Do(context.Background(), policy, 0,
		func(error) (Class, time.Duration) { return RateLimited, 7 * time.Second },
		func(context.Context) (int, error) {
			calls++
			return 0, errLimited
		})

	if notified != 1 || len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Fatalf("expected one 7s wait, got %v (notified %d)", *waits, notified)
	}
}

func TestDoDoesNotRetryCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, DefaultPolicy(), time.Second, classify, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errSlow
	})

	if !errors.Is(err, errSlow) || calls != 1 {
		t.Fatalf("expected a single failed call, got calls=%d err=%v", calls, err)
	}
}
