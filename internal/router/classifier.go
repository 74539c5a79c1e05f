package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/session"
)

const (
	classifierTurns   = 4
	classifierTimeout = 15 * time.Second
)

const classifierSystem = `You route messages of a job seeker talking to a career assistant.
Pick exactly one intent:
- analyze_resume: the user wants their résumé or profile read, summarized or reviewed.
- job_search: the user wants job postings found or filtered.
- recommend: the user asks how to improve their chances or their résumé, which skills to learn, or for career advice.
- interview_prep: the user wants to prepare for a job interview.
- general_chat: anything else.
Messages can be in English or French.`

var classifierSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent": {
			Type:   genai.TypeString,
			Format: "enum",
			Enum: []string{
				string(AnalyzeResume),
				string(JobSearch),
				string(Recommend),
				string(InterviewPrep),
				string(GeneralChat),
			},
		},
	},
	Required: []string{"intent"},
}

// LLMClassifier asks the language model for the intent of a message.
type LLMClassifier struct {
	generator ai.Generator
	timeout   time.Duration
}

func NewLLMClassifier(generator ai.Generator, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = classifierTimeout
	}
	return &LLMClassifier{generator: generator, timeout: timeout}
}

func (c *LLMClassifier) Classify(ctx context.Context, msg Message, snap session.Snapshot) (Capability, error) {
	if c == nil || c.generator == nil {
		return "", ai.NewModelError(ai.KindUnavailable, fmt.Errorf("language model is not configured"))
	}

	raw, err := c.generator.Generate(ctx, ai.Request{
		Label:   "classify_intent",
		System:  classifierSystem,
		Prompt:  classifierPrompt(msg, snap),
		Schema:  classifierSchema,
		Timeout: c.timeout,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Intent string `json:"intent"`
	}
	if err := ai.DecodeJSON(raw, &payload); err != nil {
		return "", err
	}
	capability, ok := ParseCapability(payload.Intent)
	if !ok {
		return "", ai.NewModelError(ai.KindInvalidResponse, fmt.Errorf("unknown intent %q", payload.Intent))
	}
	return capability, nil
}

func classifierPrompt(msg Message, snap session.Snapshot) string {
	var b strings.Builder
	b.WriteString("Session:\n")
	b.WriteString(describeState(snap))
	if recent := snap.Recent(classifierTurns); len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	fmt.Fprintf(&b, "\nMessage:\n%s\n", msg.Text)
	return b.String()
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, msg Message, snap session.Snapshot) (Capability, error)

func (f ClassifierFunc) Classify(ctx context.Context, msg Message, snap session.Snapshot) (Capability, error) {
	return f(ctx, msg, snap)
}
