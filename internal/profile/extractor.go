package profile

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/postings"
)

//go:embed prompt.md
var promptTemplate string

const (
	systemInstruction = "You are a careful résumé parser. You answer with JSON that follows the provided schema."
	maxResumeRunes    = 30000
)

// ExtractionFailed is returned when no profile could be built from the text.
type ExtractionFailed struct {
	Reason string
	Err    error
}

func (e *ExtractionFailed) Error() string {
	if e.Err == nil {
		return "profile extraction failed: " + e.Reason
	}
	return fmt.Sprintf("profile extraction failed: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionFailed) Unwrap() error {
	return e.Err
}

// Extractor turns résumé text into a Profile with a single structured model call.
type Extractor struct {
	generator ai.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

func NewExtractor(generator ai.Generator, timeout time.Duration, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Extract never returns a profile holding a structurally invalid entry: such
// entries are dropped one by one.
func (e *Extractor) Extract(ctx context.Context, rawText string) (*Profile, error) {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil, &ExtractionFailed{Reason: "empty résumé text"}
	}
	if e.generator == nil {
		return nil, &ExtractionFailed{Reason: "language model is not configured"}
	}

	runes := []rune(text)
	if len(runes) > maxResumeRunes {
		text = string(runes[:maxResumeRunes])
	}

	raw, err := e.generator.Generate(ctx, ai.Request{
		Label:   "extract_profile",
		System:  systemInstruction,
		Prompt:  strings.ReplaceAll(promptTemplate, "{{RESUME_TEXT}}", text),
		Schema:  responseSchema,
		Timeout: e.timeout,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &ExtractionFailed{Reason: "language model call failed", Err: err}
	}

	var payload map[string]any
	if err := ai.DecodeJSON(raw, &payload); err != nil {
		return nil, &ExtractionFailed{Reason: "model output could not be parsed", Err: err}
	}

	p, dropped := build(payload)
	if dropped > 0 {
		e.logger.Info("dropped invalid profile entries", zap.Int("dropped", dropped))
	}
	if p.Empty() {
		return nil, &ExtractionFailed{Reason: "no profile information found"}
	}

	p.RawTextDigest = Digest(rawText)

	e.logger.Debug("extracted profile",
		zap.Int("skills", len(p.Skills)),
		zap.Int("experiences", len(p.Experiences)),
		zap.Int("education", len(p.Education)),
	)

	return p, nil
}

// Digest identifies the source text of a profile.
func Digest(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return fmt.Sprintf("%x", sum[:])
}

// build validates the model payload field by field and returns the number of dropped entries.
func build(payload map[string]any) (*Profile, int) {
	p := &Profile{
		FullName:   first(payload, "full_name", "name"),
		Email:      first(payload, "email"),
		Phone:      first(payload, "phone"),
		Location:   first(payload, "location"),
		DesiredJob: first(payload, "desired_job"),
		Summary:    first(payload, "summary"),
		Skills:     NormalizeSkills(ai.CoerceStrings(payload["skills"])),
		Languages:  dedupe(ai.CoerceStrings(payload["languages"])),
	}
	p.DesiredContract = postings.ContractCode(first(payload, "desired_contract"))

	dropped := 0
	for _, item := range objects(payload["experiences"]) {
		exp, ok := buildExperience(item)
		if !ok {
			dropped++
			continue
		}
		p.Experiences = append(p.Experiences, exp)
	}
	sortExperiences(p.Experiences)

	for _, item := range objects(payload["education"]) {
		edu, ok := buildEducation(item)
		if !ok {
			dropped++
			continue
		}
		p.Education = append(p.Education, edu)
	}

	if p.Skills == nil {
		p.Skills = []string{}
	}

	return p, dropped
}

func buildExperience(item map[string]any) (Experience, bool) {
	exp := Experience{
		Title:        first(item, "title", "position"),
		Organization: first(item, "organization", "company"),
		Location:     first(item, "location"),
		Description:  first(item, "description"),
		Period:       buildPeriod(item),
	}
	if exp.Title == "" {
		return Experience{}, false
	}
	if exp.Period.Start != nil && exp.Period.End != nil && exp.Period.End.Before(*exp.Period.Start) {
		return Experience{}, false
	}
	return exp, true
}

func buildEducation(item map[string]any) (Education, bool) {
	edu := Education{
		Institution:  first(item, "institution", "school"),
		Credential:   first(item, "credential", "diploma", "degree"),
		FieldOfStudy: first(item, "field_of_study"),
		Period:       buildPeriod(item),
	}
	if edu.Institution == "" && edu.Credential == "" {
		return Education{}, false
	}
	return edu, true
}

func buildPeriod(item map[string]any) Period {
	var period Period

	start, _, _ := ParseYearMonth(first(item, "start", "start_date"))
	period.Start = start

	end, ongoing, ok := ParseYearMonth(first(item, "end", "end_date"))
	switch {
	case ongoing:
		period.End = nil
	case ok:
		period.End = end
	case start != nil && first(item, "end", "end_date") != "":
		// An unreadable end closes the period at its start.
		period.End = start
	}

	return period
}

func first(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := ai.CoerceString(m[key]); v != "" && v != "null" {
			return v
		}
	}
	return ""
}

func objects(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		} else {
			// Keep the position so the caller counts it as dropped.
			out = append(out, map[string]any{})
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

var (
	periodProperties = map[string]*genai.Schema{
		"start": {Type: genai.TypeString, Description: "Start date, YYYY-MM or YYYY."},
		"end":   {Type: genai.TypeString, Description: "End date, YYYY-MM or YYYY, or \"present\"."},
	}

	responseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"full_name":        {Type: genai.TypeString},
			"email":            {Type: genai.TypeString},
			"phone":            {Type: genai.TypeString},
			"location":         {Type: genai.TypeString, Description: "City or region of the candidate."},
			"desired_job":      {Type: genai.TypeString, Description: "Position the candidate is looking for."},
			"desired_contract": {Type: genai.TypeString, Description: "Contract type the candidate is looking for."},
			"summary":          {Type: genai.TypeString},
			"skills": {
				Type:        genai.TypeArray,
				Description: "Atomic skill keywords.",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"languages": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"experiences": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: withPeriod(map[string]*genai.Schema{
						"title":        {Type: genai.TypeString, Description: "Job title."},
						"organization": {Type: genai.TypeString, Description: "Employer name."},
						"location":     {Type: genai.TypeString},
						"description":  {Type: genai.TypeString},
					}),
					Required: []string{"title"},
				},
			},
			"education": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: withPeriod(map[string]*genai.Schema{
						"institution":    {Type: genai.TypeString},
						"credential":     {Type: genai.TypeString, Description: "Diploma or certificate name."},
						"field_of_study": {Type: genai.TypeString},
					}),
				},
			},
		},
		Required: []string{"skills", "experiences", "education"},
	}
)

func withPeriod(properties map[string]*genai.Schema) map[string]*genai.Schema {
	for k, v := range periodProperties {
		properties[k] = v
	}
	return properties
}
