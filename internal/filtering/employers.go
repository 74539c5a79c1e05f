package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/textnorm"
)

type employersFilter struct {
	disabled  bool
	reason    string
	employers []string
}

// NewEmployers creates a filter that removes postings by employers configured in the config.
func NewEmployers() Filter {
	return &employersFilter{}
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *employersFilter) IsEnabled() bool { return !f.disabled }

func (f *employersFilter) Validate(cfg *Config) error {
	f.employers = nil
	if cfg == nil {
		return nil
	}
	for _, employer := range cfg.Employers {
		if folded := textnorm.Fold(employer); folded != "" {
			f.employers = append(f.employers, folded)
		}
	}
	return nil
}

func (f *employersFilter) Apply(_ context.Context, deps Deps, items []*postings.Posting) ([]*postings.Posting, Step, error) {
	initial := len(items)
	if len(f.employers) == 0 {
		return items, stepOf(initial, items), nil
	}

	kept, excluded := keep(items, func(p *postings.Posting) bool {
		employer := textnorm.Fold(p.Employer)
		for _, e := range f.employers {
			if employer == e {
				return false
			}
		}
		return true
	})
	if len(excluded) > 0 {
		deps.Logger.Info("excluding postings by employers",
			zap.Strings("excluded_employers", f.employers),
			zap.Strings("excluded_postings", excluded),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, stepOf(initial, kept), nil
}

func (f *employersFilter) Status() Status {
	details := map[string]string{}
	if len(f.employers) > 0 {
		details["employers"] = strings.Join(f.employers, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
