package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/career-assistant/internal/postings"
)

type contractFilter struct {
	disabled bool
	reason   string
	code     string
}

// NewContract creates a filter that keeps postings with the requested contract type.
// Postings without a contract type are kept.
func NewContract() Filter {
	return &contractFilter{}
}

func (f *contractFilter) Name() string { return "contract" }

func (f *contractFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *contractFilter) IsEnabled() bool { return !f.disabled }

func (f *contractFilter) Validate(cfg *Config) error {
	f.code = ""
	if cfg == nil || cfg.Contract == "" {
		return nil
	}
	f.code = postings.ContractCode(cfg.Contract)
	if f.code == "" {
		return fmt.Errorf("unknown contract type %q", cfg.Contract)
	}
	return nil
}

func (f *contractFilter) Apply(_ context.Context, _ Deps, items []*postings.Posting) ([]*postings.Posting, Step, error) {
	if f.code == "" {
		return items, stepOf(len(items), items), nil
	}

	kept, _ := keep(items, func(p *postings.Posting) bool {
		return p.ContractType == "" || p.ContractType == f.code
	})
	return kept, stepOf(len(items), kept), nil
}

func (f *contractFilter) Status() Status {
	details := map[string]string{}
	if f.code != "" {
		details["contract"] = f.code
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
