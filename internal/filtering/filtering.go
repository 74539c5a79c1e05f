// Package filtering runs the sequential posting filters applied before scoring.
package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/postings"
)

// Filter represents a single filtering step applied to postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, items []*postings.Posting) ([]*postings.Posting, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
	Now    time.Time
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	Employers   []string      `mapstructure:"exclude_employers"`
	Contract    string        `mapstructure:"contract"`
	ExcludeFile string        `mapstructure:"exclude_file"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	Disabled    []string      `mapstructure:"disabled"`
}

// WithQuery returns a copy of cfg narrowed by the filters of a single search.
func (c *Config) WithQuery(f postings.Filters) *Config {
	out := &Config{}
	if c != nil {
		*out = *c
		out.Employers = append([]string(nil), c.Employers...)
		out.Disabled = append([]string(nil), c.Disabled...)
	}
	out.Employers = append(out.Employers, f.ExcludeEmployers...)
	if f.Contract != "" {
		out.Contract = f.Contract
	}
	return out
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns a fresh set of the standard steps in the order they run.
// Steps keep state between Validate and Apply, so a set must not be shared between runs.
func Default(cfg *Config) []Filter {
	steps := []Filter{
		NewDedupe(),
		NewExcludeFile(),
		NewEmployers(),
		NewContract(),
		NewMaxAge(),
	}
	if cfg != nil {
		for _, name := range cfg.Disabled {
			DisableByName(steps, name, "disabled in configuration")
		}
	}
	return steps
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns the postings left.
// The input slice is not modified.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, items []*postings.Posting) ([]*postings.Posting, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now.IsZero() {
		deps.Now = time.Now()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	current := append([]*postings.Posting(nil), items...)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !step.IsEnabled() {
			deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, current)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		current = next
	}

	return current, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// keep returns the postings for which pred is true and the ids of the others.
func keep(items []*postings.Posting, pred func(*postings.Posting) bool) ([]*postings.Posting, []string) {
	kept := make([]*postings.Posting, 0, len(items))
	var dropped []string
	for _, p := range items {
		if p != nil && pred(p) {
			kept = append(kept, p)
			continue
		}
		if p != nil {
			dropped = append(dropped, p.ID)
		}
	}
	return kept, dropped
}

func stepOf(initial int, left []*postings.Posting) Step {
	return Step{Initial: initial, Dropped: initial - len(left), Left: len(left)}
}
