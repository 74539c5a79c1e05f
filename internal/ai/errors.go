package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a language model failure.
type Kind int

const (
	KindUnavailable Kind = iota
	KindTimeout
	KindRateLimited
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unavailable"
	}
}

// ModelError is returned by every Generator when the model call fails.
type ModelError struct {
	Kind Kind
	// RetryAfter is the delay the provider asked for, if any.
	RetryAfter time.Duration
	Err        error
}

func NewModelError(kind Kind, err error) *ModelError {
	return &ModelError{Kind: kind, Err: err}
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s", e.Kind)
	}
	return fmt.Sprintf("model %s: %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a model error found in err's chain.
func KindOf(err error) (Kind, bool) {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr.Kind, true
	}
	return 0, false
}

// asModelError makes sure callers only ever see *ModelError or a context cancellation.
func asModelError(err error) error {
	if err == nil {
		return nil
	}

	var modelErr *ModelError
	switch {
	case errors.As(err, &modelErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return NewModelError(KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return NewModelError(KindUnavailable, err)
	}
}
