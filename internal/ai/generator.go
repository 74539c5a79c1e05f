package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/retry"
)

const defaultTimeout = 30 * time.Second

// Request is a single prompt sent to a language model.
type Request struct {
	// Label names the call in logs, e.g. "extract_profile".
	Label  string
	System string
	Prompt string
	// Schema requests structured JSON output when set.
	Schema *genai.Schema
	// Timeout bounds the call. Zero means the generator default.
	Timeout time.Duration
}

// Generator is the language model boundary.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Retrying applies the shared retry policy and a per-call timeout to another Generator.
type Retrying struct {
	next    Generator
	policy  retry.Policy
	timeout time.Duration
	logger  *zap.Logger
}

func NewRetrying(next Generator, policy retry.Policy, timeout time.Duration, logger *zap.Logger) *Retrying {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retrying{
		next:    next,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *Retrying) Generate(ctx context.Context, req Request) (string, error) {
	if r == nil || r.next == nil {
		return "", NewModelError(KindUnavailable, errors.New("language model is not configured"))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	policy := r.policy
	policy.Notify = func(class retry.Class, delay time.Duration, err error) {
		r.logger.Warn("retrying model call",
			zap.String("call", req.Label),
			zap.String("class", class.String()),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	out, err := retry.Do(ctx, policy, timeout, Classify, func(ctx context.Context) (string, error) {
		out, err := r.next.Generate(ctx, req)
		return out, asModelError(err)
	})
	if err != nil {
		return "", asModelError(err)
	}

	return out, nil
}

// Classify maps model errors onto the retry classes.
func Classify(err error) (retry.Class, time.Duration) {
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return retry.Timeout, 0
		}
		return retry.Fatal, 0
	}

	switch modelErr.Kind {
	case KindRateLimited:
		return retry.RateLimited, modelErr.RetryAfter
	case KindTimeout:
		return retry.Timeout, 0
	default:
		return retry.Fatal, 0
	}
}
