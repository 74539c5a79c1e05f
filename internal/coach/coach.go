// Package coach prepares interview questions for a profile, a posting or both.
package coach

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
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/textnorm"
	"github.com/spigell/career-assistant/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

// ErrInsufficientContext is returned when there is neither a profile nor a posting to prepare for.
var ErrInsufficientContext = errors.New("interview preparation needs a profile or a posting")

const (
	CategoryTechnical  = "technical"
	CategoryBehavioral = "behavioral"
	CategoryMotivation = "motivation"
	CategoryExperience = "experience"

	systemInstruction = "You are an experienced technical recruiter coaching a candidate. You answer with JSON that follows the provided schema."
	maxQuestions      = 8
	maxTalkingPoints  = 3
	maxPromptDesc     = 4000
)

type Question struct {
	Category      string   `json:"category"`
	Text          string   `json:"text"`
	TalkingPoints []string `json:"talking_points,omitempty"`
}

type Prep struct {
	PostingID string     `json:"posting_id,omitempty"`
	Focus     string     `json:"focus"`
	Questions []Question `json:"questions"`
}

type Coach struct {
	generator ai.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// New returns a coach. A nil generator makes it use built-in question templates only.
func New(generator ai.Generator, timeout time.Duration, logger *zap.Logger) *Coach {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Prepare returns interview questions. The posting's requirements, or the profile's
// most recent experience when there is no posting, always appear in at least one question.
func (c *Coach) Prepare(ctx context.Context, p *profile.Profile, posting *postings.Posting) (*Prep, error) {
	if p == nil && posting == nil {
		return nil, ErrInsufficientContext
	}

	prep, err := c.generate(ctx, p, posting)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Warn("falling back to question templates", zap.Error(err))
		prep = nil
	}
	if prep == nil || len(prep.Questions) == 0 {
		prep = fromTemplates(p, posting)
	}

	enforce(prep, p, posting)
	if posting != nil {
		prep.PostingID = posting.ID
	}

	return prep, nil
}

func (c *Coach) generate(ctx context.Context, p *profile.Profile, posting *postings.Posting) (*Prep, error) {
	if c.generator == nil {
		return nil, nil
	}

	prompt := strings.NewReplacer(
		"{{PROFILE}}", describeProfile(p),
		"{{POSTING}}", describePosting(posting),
	).Replace(promptTemplate)

	raw, err := c.generator.Generate(ctx, ai.Request{
		Label:   "interview_prep",
		System:  systemInstruction,
		Prompt:  prompt,
		Schema:  responseSchema,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := ai.DecodeJSON(raw, &payload); err != nil {
		return nil, err
	}

	prep := &Prep{Focus: ai.CoerceString(payload["focus"])}
	items, _ := payload["questions"].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q := Question{
			Category:      category(ai.CoerceString(m["category"])),
			Text:          strings.TrimSpace(ai.CoerceString(m["text"])),
			TalkingPoints: ai.CoerceStrings(m["talking_points"]),
		}
		if q.Text == "" {
			continue
		}
		prep.Questions = append(prep.Questions, q)
	}

	return prep, nil
}

func category(value string) string {
	switch v := textnorm.Fold(value); v {
	case CategoryTechnical, CategoryBehavioral, CategoryMotivation, CategoryExperience:
		return v
	default:
		return CategoryBehavioral
	}
}

// enforce makes the prep satisfy its anchoring rules, fills the focus and keys
// talking points to the profile's experiences.
func enforce(prep *Prep, p *profile.Profile, posting *postings.Posting) {
	if posting != nil {
		requirements := Requirements(posting)
		if len(requirements) > 0 && !anyQuestionMentions(prep.Questions, requirements) {
			prep.Questions = append([]Question{requirementQuestion(requirements[0])}, prep.Questions...)
		}
	} else if anchors := profileAnchors(p); len(anchors) > 0 && !anyQuestionMentions(prep.Questions, anchors) {
		prep.Questions = append([]Question{profileQuestion(p)}, prep.Questions...)
	}

	if len(prep.Questions) > maxQuestions {
		prep.Questions = prep.Questions[:maxQuestions]
	}

	for i := range prep.Questions {
		q := &prep.Questions[i]
		if len(q.TalkingPoints) == 0 {
			q.TalkingPoints = talkingPoints(p, q.Text)
		}
		if len(q.TalkingPoints) > maxTalkingPoints {
			q.TalkingPoints = q.TalkingPoints[:maxTalkingPoints]
		}
	}

	if strings.TrimSpace(prep.Focus) == "" {
		prep.Focus = focus(p, posting)
	}
}

func anyQuestionMentions(questions []Question, terms []string) bool {
	for _, q := range questions {
		folded := textnorm.Fold(q.Text)
		for _, term := range terms {
			if t := textnorm.Fold(term); t != "" && strings.Contains(folded, t) {
				return true
			}
		}
	}
	return false
}

func requirementQuestion(requirement string) Question {
	text := fmt.Sprintf("The role asks for %s. Can you describe a project where you used it and what you delivered?", requirement)
	if len(strings.Fields(requirement)) > 6 {
		text = fmt.Sprintf("The posting says: %q. How does your background meet this requirement?", requirement)
	}
	return Question{Category: CategoryTechnical, Text: text}
}

// profileAnchors are the terms a profile-only question must mention.
func profileAnchors(p *profile.Profile) []string {
	if p == nil {
		return nil
	}
	if recent := p.MostRecent(); recent != nil {
		return []string{recent.Title}
	}
	return topSkills(p, 3)
}

func profileQuestion(p *profile.Profile) Question {
	if recent := p.MostRecent(); recent != nil {
		text := fmt.Sprintf("Walk me through your role as %s", recent.Title)
		if recent.Organization != "" {
			text += " at " + recent.Organization
		}
		return Question{Category: CategoryExperience, Text: text + ". What are you most proud of?"}
	}
	if skills := topSkills(p, 3); len(skills) > 0 {
		return Question{
			Category: CategoryTechnical,
			Text:     fmt.Sprintf("Which project best shows your skills in %s?", strings.Join(skills, ", ")),
		}
	}
	return Question{Category: CategoryExperience, Text: "What achievement from your studies or work are you most proud of?"}
}

func topSkills(p *profile.Profile, n int) []string {
	if p == nil {
		return nil
	}
	if len(p.Skills) > n {
		return p.Skills[:n]
	}
	return p.Skills
}

// talkingPoints picks the experiences that mention a term of the question,
// falling back to the most recent one.
func talkingPoints(p *profile.Profile, question string) []string {
	if p == nil || len(p.Experiences) == 0 {
		return nil
	}

	folded := textnorm.Fold(question)
	var points []string
	for _, exp := range p.Experiences {
		source := exp.Title + "\n" + exp.Description
		relevant := textnorm.ContainsTerm(folded, textnorm.Fold(exp.Title))
		if !relevant {
			for _, skill := range profile.MentionedSkills(source, p.Skills) {
				if textnorm.ContainsTerm(folded, skill) {
					relevant = true
					break
				}
			}
		}
		if relevant {
			points = append(points, experiencePoint(exp))
		}
		if len(points) == maxTalkingPoints {
			break
		}
	}

	if len(points) == 0 {
		points = append(points, experiencePoint(p.Experiences[0]))
	}
	return points
}

func experiencePoint(exp profile.Experience) string {
	var b strings.Builder
	b.WriteString(exp.Title)
	if exp.Organization != "" {
		b.WriteString(" at ")
		b.WriteString(exp.Organization)
	}
	if period := exp.Period.String(); period != "" {
		fmt.Fprintf(&b, " (%s)", period)
	}
	if exp.Description != "" {
		b.WriteString(": ")
		b.WriteString(utils.TruncateAtWord(exp.Description, 120))
	}
	return b.String()
}

func focus(p *profile.Profile, posting *postings.Posting) string {
	if posting != nil {
		target := posting.Title
		if posting.Employer != "" {
			target += " at " + posting.Employer
		}
		if reqs := Requirements(posting); len(reqs) > 0 {
			return fmt.Sprintf("Prepare for %s: show concrete results with %s.", target, strings.Join(firstN(reqs, 3), ", "))
		}
		return fmt.Sprintf("Prepare for %s: link your experience to the missions of the posting.", target)
	}
	if recent := p.MostRecent(); recent != nil {
		return fmt.Sprintf("Tell a clear story around your role as %s and the results you achieved.", recent.Title)
	}
	return "Back each of your key skills with one concrete example."
}

func describeProfile(p *profile.Profile) string {
	if p == nil {
		return "(no profile)"
	}
	var b strings.Builder
	if p.DesiredJob != "" {
		fmt.Fprintf(&b, "Desired job: %s\n", p.DesiredJob)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Skills, ", "))
	}
	for _, exp := range p.Experiences {
		fmt.Fprintf(&b, "- %s\n", experiencePoint(exp))
	}
	for _, edu := range p.Education {
		fmt.Fprintf(&b, "- Education: %s %s\n", edu.Credential, edu.Institution)
	}
	return strings.TrimSpace(b.String())
}

func describePosting(posting *postings.Posting) string {
	if posting == nil {
		return "(no posting)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", posting.Title)
	if posting.Employer != "" {
		fmt.Fprintf(&b, "Employer: %s\n", posting.Employer)
	}
	if len(posting.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Requirements: %s\n", strings.Join(posting.RequiredSkills, ", "))
	}
	if posting.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", utils.TruncateAtWord(posting.Description, maxPromptDesc))
	}
	return strings.TrimSpace(b.String())
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"focus": {Type: genai.TypeString},
		"questions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"category": {
						Type: genai.TypeString,
						Enum: []string{CategoryTechnical, CategoryBehavioral, CategoryMotivation, CategoryExperience},
					},
					"text": {Type: genai.TypeString},
					"talking_points": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"category", "text"},
			},
		},
	},
	Required: []string{"focus", "questions"},
}
