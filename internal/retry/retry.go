// Package retry implements the bounded retry policy shared by the language
// model and postings API boundaries: a rate-limited call is retried once after
// a backoff, a timed out call is retried once with a shorter timeout, and
// anything else is returned as is.
package retry

import (
	"context"
	"time"

	"github.com/spigell/career-assistant/internal/utils"
)

// Class tells the policy how a failed attempt should be treated.
type Class int

const (
	Fatal Class = iota
	RateLimited
	Timeout
)

func (c Class) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	default:
		return "fatal"
	}
}

const (
	defaultBackoff       = 2 * time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultTimeoutFactor = 0.5
	minFollowUpTimeout   = 100 * time.Millisecond
)

// Policy configures the single retry.
type Policy struct {
	// Backoff is the wait before retrying a rate-limited call.
	Backoff time.Duration
	// MaxBackoff caps the wait. When the server asks for longer the call is not retried.
	MaxBackoff time.Duration
	// TimeoutFactor scales the timeout of the follow-up attempt after a timeout.
	TimeoutFactor float64

	// Notify is called before the retry is made.
	Notify func(class Class, delay time.Duration, err error)
}

// Classifier maps an error to its class and the delay the remote side asked for, if any.
type Classifier func(err error) (Class, time.Duration)

var wait = utils.WaitFor

func DefaultPolicy() Policy {
	return Policy{
		Backoff:       defaultBackoff,
		MaxBackoff:    defaultMaxBackoff,
		TimeoutFactor: defaultTimeoutFactor,
	}
}

func (p Policy) normalized() Policy {
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.TimeoutFactor <= 0 || p.TimeoutFactor > 1 {
		p.TimeoutFactor = defaultTimeoutFactor
	}
	return p
}

// FollowUpTimeout is the timeout used for the retry after a timed out attempt.
func (p Policy) FollowUpTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	next := time.Duration(float64(timeout) * p.normalized().TimeoutFactor)
	if next < minFollowUpTimeout && timeout > minFollowUpTimeout {
		next = minFollowUpTimeout
	}
	if next <= 0 {
		next = timeout
	}
	return next
}

// Do runs fn once with the given timeout and retries it at most once according to the policy.
// A zero timeout means the attempt is bounded by ctx only.
func Do[T any](ctx context.Context, p Policy, timeout time.Duration, classify Classifier, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	result, err := attempt(ctx, timeout, fn)
	if err == nil {
		return result, nil
	}

	// The caller gave up, there is nobody to retry for.
	if ctx.Err() != nil {
		return result, err
	}

	class, retryAfter := classify(err)
	switch class {
	case RateLimited:
		delay := p.Backoff
		if retryAfter > delay {
			delay = retryAfter
		}
		if delay > p.MaxBackoff {
			return result, err
		}
		if p.Notify != nil {
			p.Notify(class, delay, err)
		}
		if werr := wait(ctx, delay); werr != nil {
			return result, err
		}
		return attempt(ctx, timeout, fn)
	case Timeout:
		next := p.FollowUpTimeout(timeout)
		if p.Notify != nil {
			p.Notify(class, 0, err)
		}
		return attempt(ctx, next, fn)
	default:
		return result, err
	}
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
