package matching

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultSkillWeight   = 0.7
	DefaultRecencyWeight = 0.3
	DefaultMinOverlap    = 0.2
	DefaultHalfLife      = 30 * 24 * time.Hour
	DefaultTopN          = 5
)

// Weights configures scoring. Skill overlap must weigh at least as much as recency.
type Weights struct {
	Skill      float64       `mapstructure:"skill"`
	Recency    float64       `mapstructure:"recency"`
	MinOverlap float64       `mapstructure:"min_overlap"`
	HalfLife   time.Duration `mapstructure:"half_life"`
	TopN       int           `mapstructure:"top_n"`
}

func DefaultWeights() Weights {
	return Weights{
		Skill:      DefaultSkillWeight,
		Recency:    DefaultRecencyWeight,
		MinOverlap: DefaultMinOverlap,
		HalfLife:   DefaultHalfLife,
		TopN:       DefaultTopN,
	}
}

func (w Weights) Validate() error {
	var errs []error
	if w.Skill < 0 || w.Recency < 0 {
		errs = append(errs, fmt.Errorf("weights must not be negative (skill %.2f, recency %.2f)", w.Skill, w.Recency))
	}
	if w.Skill+w.Recency <= 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}
	if w.Skill < w.Recency {
		errs = append(errs, fmt.Errorf("skill weight %.2f must not be lower than recency weight %.2f", w.Skill, w.Recency))
	}
	if w.MinOverlap < 0 || w.MinOverlap > 1 {
		errs = append(errs, fmt.Errorf("min overlap %.2f is outside [0,1]", w.MinOverlap))
	}
	if w.HalfLife <= 0 {
		errs = append(errs, fmt.Errorf("half life must be positive, got %s", w.HalfLife))
	}
	if w.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top n must be positive, got %d", w.TopN))
	}
	return errors.Join(errs...)
}
