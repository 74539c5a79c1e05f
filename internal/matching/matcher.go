// Package matching searches postings for a profile, ranks them and derives
// skill-gap recommendations from the ranked results.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/filtering"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
)

// fetchFactor widens the search so ranking has more than TopN candidates.
const fetchFactor = 3

// Searcher is the postings API as seen by the matcher.
type Searcher interface {
	Search(ctx context.Context, q postings.Query) ([]*postings.Posting, error)
}

type Matcher struct {
	searcher Searcher
	weights  Weights
	filters  *filtering.Config
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Matcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.now = now
	}
}

// WithFilters sets the base filter configuration applied to every search.
func WithFilters(cfg *filtering.Config) Option {
	return func(m *Matcher) {
		m.filters = cfg
	}
}

func New(searcher Searcher, weights Weights, logger *zap.Logger, opts ...Option) (*Matcher, error) {
	if searcher == nil {
		return nil, errors.New("postings searcher is required")
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Matcher{
		searcher: searcher,
		weights:  weights,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Debug("posting filters", zap.Any("filters", filtering.Describe(filtering.Default(m.filters))))
	return m, nil
}

func (m *Matcher) Weights() Weights {
	return m.weights
}

// Match searches postings for the profile and returns at most TopN ranked results.
// Empty keywords and location are taken from the profile.
func (m *Matcher) Match(ctx context.Context, p *profile.Profile, q postings.Query) (*ResultSet, error) {
	if p != nil {
		if q.Keywords == "" {
			q.Keywords = p.SearchKeywords()
		}
		if q.Location == "" {
			q.Location = p.Location
		}
	}
	if q.Filters.Limit <= 0 {
		q.Filters.Limit = m.weights.TopN * fetchFactor
	}

	found, err := m.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	now := m.now()
	cfg := m.filters.WithQuery(q.Filters)
	filtered, err := filtering.Run(ctx, cfg, filtering.Deps{Logger: m.logger, Now: now}, filtering.Default(cfg), found)
	if err != nil {
		return nil, fmt.Errorf("filter postings: %w", err)
	}

	results := Rank(p, filtered, m.weights, now)
	m.logger.Debug("postings ranked",
		zap.String("keywords", q.Keywords),
		zap.Int("found", len(found)),
		zap.Int("filtered", len(filtered)),
		zap.Int("qualified", len(results)),
	)
	if len(results) > m.weights.TopN {
		results = results[:m.weights.TopN]
	}

	return &ResultSet{
		Query:    q,
		Results:  results,
		Found:    len(found),
		RankedAt: now,
	}, nil
}
