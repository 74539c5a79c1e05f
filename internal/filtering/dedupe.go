package filtering

import (
	"context"

	"github.com/spigell/career-assistant/internal/postings"
)

type dedupeFilter struct{}

// NewDedupe creates a filter that keeps the first posting for every id.
func NewDedupe() Filter {
	return &dedupeFilter{}
}

func (f *dedupeFilter) Name() string { return "dedupe" }

func (f *dedupeFilter) Disable(string) {}

func (f *dedupeFilter) IsEnabled() bool { return true }

func (f *dedupeFilter) Validate(*Config) error { return nil }

func (f *dedupeFilter) Apply(_ context.Context, _ Deps, items []*postings.Posting) ([]*postings.Posting, Step, error) {
	seen := make(map[string]struct{}, len(items))
	kept, _ := keep(items, func(p *postings.Posting) bool {
		if _, ok := seen[p.ID]; ok {
			return false
		}
		seen[p.ID] = struct{}{}
		return true
	})

	return kept, stepOf(len(items), kept), nil
}
