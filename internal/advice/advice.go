// Package advice writes résumé improvements and career advice from a profile
// and, when there are any, the listed postings.
package advice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	systemInstruction = "You are an experienced career adviser. You answer with JSON that follows the provided schema."
	maxItems          = 5
	maxPostings       = 5
	maxPromptDesc     = 600
)

// Advice is what the model suggests on top of the skill gaps.
type Advice struct {
	Improvements      []string `json:"cv_improvements"`
	HighlightedSkills []string `json:"highlighted_skills"`
	CareerAdvice      string   `json:"career_advice,omitempty"`
}

func (a *Advice) Empty() bool {
	return a == nil || (len(a.Improvements) == 0 && len(a.HighlightedSkills) == 0 && a.CareerAdvice == "")
}

type Adviser struct {
	generator ai.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// New returns an adviser. A nil generator makes Advise return no advice.
func New(generator ai.Generator, timeout time.Duration, logger *zap.Logger) *Adviser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adviser{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Advise returns nil without an error when no model is configured or the model fails.
// Cancellation is returned as is.
func (a *Adviser) Advise(ctx context.Context, p *profile.Profile, rs *matching.ResultSet, gaps []matching.Suggestion) (*Advice, error) {
	if a.generator == nil || p == nil {
		return nil, nil
	}

	prompt := strings.NewReplacer(
		"{{PROFILE}}", describeProfile(p),
		"{{POSTINGS}}", describePostings(rs),
		"{{GAPS}}", describeGaps(gaps),
	).Replace(promptTemplate)

	raw, err := a.generator.Generate(ctx, ai.Request{
		Label:   "career_advice",
		System:  systemInstruction,
		Prompt:  prompt,
		Schema:  responseSchema,
		Timeout: a.timeout,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		a.logger.Warn("career advice unavailable", zap.Error(err))
		return nil, nil
	}

	var payload map[string]any
	if err := ai.DecodeJSON(raw, &payload); err != nil {
		a.logger.Warn("career advice unreadable", zap.Error(err), zap.String("raw", utils.TruncateForLog(raw, 500)))
		return nil, nil
	}

	adv := &Advice{
		Improvements:      firstN(nonBlank(ai.CoerceStrings(payload["cv_improvements"])), maxItems),
		HighlightedSkills: firstN(ownedSkills(p, ai.CoerceStrings(payload["highlighted_skills"])), maxItems),
		CareerAdvice:      strings.TrimSpace(ai.CoerceString(payload["career_advice"])),
	}
	if adv.Empty() {
		return nil, nil
	}
	return adv, nil
}

// ownedSkills drops highlighted skills the profile does not have.
func ownedSkills(p *profile.Profile, skills []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range skills {
		norm := profile.NormalizeSkill(s)
		if norm == "" || !p.HasSkill(norm) {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func describeProfile(p *profile.Profile) string {
	var b strings.Builder
	if p.DesiredJob != "" {
		fmt.Fprintf(&b, "Desired job: %s\n", p.DesiredJob)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", p.Location)
	}
	if p.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.Summary)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Skills, ", "))
	}
	for _, exp := range p.Experiences {
		line := exp.Title
		if exp.Organization != "" {
			line += " at " + exp.Organization
		}
		if exp.Description != "" {
			line += ": " + exp.Description
		}
		fmt.Fprintf(&b, "- %s\n", line)
	}
	for _, edu := range p.Education {
		fmt.Fprintf(&b, "- Education: %s %s %s\n", edu.Credential, edu.FieldOfStudy, edu.Institution)
	}
	return strings.TrimSpace(b.String())
}

func describePostings(rs *matching.ResultSet) string {
	if rs.Len() == 0 {
		return "(no postings listed)"
	}
	var b strings.Builder
	for i := 1; i <= rs.Len() && i <= maxPostings; i++ {
		posting := rs.Posting(i)
		if posting == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", posting.String())
		if len(posting.RequiredSkills) > 0 {
			fmt.Fprintf(&b, "  Requirements: %s\n", strings.Join(posting.RequiredSkills, ", "))
		}
		if posting.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", utils.TruncateAtWord(posting.Description, maxPromptDesc))
		}
	}
	return strings.TrimSpace(b.String())
}

func describeGaps(gaps []matching.Suggestion) string {
	if len(gaps) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, g := range gaps {
		fmt.Fprintf(&b, "%s: %d\n", g.Skill, g.Count)
	}
	return strings.TrimSpace(b.String())
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"cv_improvements": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"highlighted_skills": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"career_advice": {Type: genai.TypeString},
	},
	Required: []string{"cv_improvements", "highlighted_skills", "career_advice"},
}
