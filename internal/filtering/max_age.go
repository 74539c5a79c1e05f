package filtering

import (
	"context"
	"time"

	"github.com/spigell/career-assistant/internal/postings"
)

type maxAgeFilter struct {
	disabled bool
	reason   string
	maxAge   time.Duration
}

// NewMaxAge creates a filter that drops postings published more than MaxAge ago.
// Postings without a publication date are kept.
func NewMaxAge() Filter {
	return &maxAgeFilter{}
}

func (f *maxAgeFilter) Name() string { return "max_age" }

func (f *maxAgeFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *maxAgeFilter) IsEnabled() bool { return !f.disabled }

func (f *maxAgeFilter) Validate(cfg *Config) error {
	f.maxAge = 0
	if cfg != nil && cfg.MaxAge > 0 {
		f.maxAge = cfg.MaxAge
	}
	return nil
}

func (f *maxAgeFilter) Apply(_ context.Context, deps Deps, items []*postings.Posting) ([]*postings.Posting, Step, error) {
	if f.maxAge == 0 {
		return items, stepOf(len(items), items), nil
	}

	oldest := deps.Now.Add(-f.maxAge)
	kept, _ := keep(items, func(p *postings.Posting) bool {
		return p.PostedAt.IsZero() || !p.PostedAt.Before(oldest)
	})
	return kept, stepOf(len(items), kept), nil
}

func (f *maxAgeFilter) Status() Status {
	details := map[string]string{}
	if f.maxAge > 0 {
		details["max_age"] = f.maxAge.String()
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
