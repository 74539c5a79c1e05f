package coach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
)

type stubGenerator struct {
	response string
	err      error
	requests []ai.Request
}

func (s *stubGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	s.requests = append(s.requests, req)
	return s.response, s.err
}

func testProfile() *profile.Profile {
	ym := func(y int, m time.Month) *profile.YearMonth { return &profile.YearMonth{Year: y, Month: m} }
	return &profile.Profile{
		Skills: []string{"docker", "python", "sql"},
		Experiences: []profile.Experience{
			{Title: "Data Engineer", Organization: "Acme", Period: profile.Period{Start: ym(2022, 1)}, Description: "Built Python pipelines loading SQL warehouses."},
			{Title: "Analyst", Organization: "Initech", Period: profile.Period{Start: ym(2019, 3), End: ym(2021, 12)}},
		},
	}
}

func testPosting() *postings.Posting {
	return &postings.Posting{
		ID:             "123ABC",
		Title:          "Backend developer",
		Employer:       "Globex",
		RequiredSkills: []string{"Kubernetes", "Python"},
	}
}

func hasQuestionWith(prep *Prep, term string) bool {
	for _, q := range prep.Questions {
		if strings.Contains(strings.ToLower(q.Text), strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func TestPrepareNeedsContext(t *testing.T) {
	c := New(nil, 0, zap.NewNop())
	if _, err := c.Prepare(context.Background(), nil, nil); !errors.Is(err, ErrInsufficientContext) {
		t.Fatalf("expected ErrInsufficientContext, got %v", err)
	}
}

func TestPrepareTemplatesQuotePostingRequirements(t *testing.T) {
	c := New(nil, 0, nil)

	prep, err := c.Prepare(context.Background(), testProfile(), testPosting())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if prep.PostingID != "123ABC" {
		t.Fatalf("expected posting id, got %q", prep.PostingID)
	}
	if !hasQuestionWith(prep, "Kubernetes") {
		t.Fatalf("expected a question quoting a requirement, got %+v", prep.Questions)
	}
	if !hasQuestionWith(prep, "not on your résumé") {
		t.Fatalf("expected a skill gap question, got %+v", prep.Questions)
	}
	if prep.Focus == "" {
		t.Fatalf("expected a focus")
	}
	for _, q := range prep.Questions {
		if len(q.TalkingPoints) == 0 {
			t.Fatalf("expected talking points for %q", q.Text)
		}
	}
}

func TestPrepareWithoutPostingReferencesRecentExperience(t *testing.T) {
	c := New(nil, 0, nil)

	prep, err := c.Prepare(context.Background(), testProfile(), nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !hasQuestionWith(prep, "Data Engineer") {
		t.Fatalf("expected a question about the most recent experience, got %+v", prep.Questions)
	}
	if prep.PostingID != "" {
		t.Fatalf("expected no posting id, got %q", prep.PostingID)
	}
}

func TestPrepareWithoutExperiencesUsesSkills(t *testing.T) {
	c := New(nil, 0, nil)

	prep, err := c.Prepare(context.Background(), &profile.Profile{Skills: []string{"excel", "sql"}}, nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !hasQuestionWith(prep, "excel") {
		t.Fatalf("expected a question about the top skills, got %+v", prep.Questions)
	}
}

func TestPreparePrependsMissingRequirementQuestion(t *testing.T) {
	gen := &stubGenerator{response: `{
		"focus": "Show your delivery record.",
		"questions": [
			{"category": "Behavioral", "text": "Tell me about yourself."},
			{"category": "unknown", "text": "  "},
			{"category": "motivation", "text": "Why Globex?", "talking_points": ["Follows Globex since 2020"]}
		]
	}`}
	c := New(gen, 0, nil)

	prep, err := c.Prepare(context.Background(), testProfile(), testPosting())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(prep.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %+v", prep.Questions)
	}
	first := prep.Questions[0]
	if first.Category != CategoryTechnical || !strings.Contains(first.Text, "Kubernetes") {
		t.Fatalf("expected a prepended requirement question, got %+v", first)
	}
	if prep.Questions[1].Category != CategoryBehavioral {
		t.Fatalf("expected category to be normalized, got %q", prep.Questions[1].Category)
	}
	if prep.Questions[2].TalkingPoints[0] != "Follows Globex since 2020" {
		t.Fatalf("expected model talking points to be kept, got %v", prep.Questions[2].TalkingPoints)
	}
	if prep.Focus != "Show your delivery record." {
		t.Fatalf("unexpected focus %q", prep.Focus)
	}

	req := gen.requests[0]
	if req.Schema == nil || !strings.Contains(req.Prompt, "Backend developer") || !strings.Contains(req.Prompt, "Data Engineer") {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestPrepareKeepsCompliantModelOutput(t *testing.T) {
	gen := &stubGenerator{response: `{"focus":"f","questions":[{"category":"technical","text":"How do you deploy Python services on kubernetes?"}]}`}
	c := New(gen, 0, nil)

	prep, err := c.Prepare(context.Background(), testProfile(), testPosting())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(prep.Questions) != 1 {
		t.Fatalf("expected the model question only, got %+v", prep.Questions)
	}
	if got := prep.Questions[0].TalkingPoints; len(got) != 1 || !strings.HasPrefix(got[0], "Data Engineer at Acme") {
		t.Fatalf("expected a talking point keyed to the Python experience, got %v", got)
	}
}

func TestPrepareFallsBackOnModelFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "model error", gen: &stubGenerator{err: ai.NewModelError(ai.KindUnavailable, errors.New("boom"))}},
		{name: "invalid json", gen: &stubGenerator{response: "not json"}},
		{name: "no questions", gen: &stubGenerator{response: `{"focus":"x","questions":[]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prep, err := New(tt.gen, 0, nil).Prepare(context.Background(), nil, testPosting())
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}
			if !hasQuestionWith(prep, "Kubernetes") || !hasQuestionWith(prep, "Backend developer at Globex") {
				t.Fatalf("expected template questions, got %+v", prep.Questions)
			}
		})
	}
}

func TestPreparePassesCancellationThrough(t *testing.T) {
	gen := &stubGenerator{err: context.Canceled}
	if _, err := New(gen, 0, nil).Prepare(context.Background(), testProfile(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRequirementsFallBackToFirstSentence(t *testing.T) {
	posting := &postings.Posting{
		Title:       "Vendeur",
		Description: "\n Accueil des clients en boutique. Mise en rayon le matin.",
	}

	got := Requirements(posting)
	if len(got) != 1 || got[0] != "Accueil des clients en boutique" {
		t.Fatalf("expected the first sentence, got %v", got)
	}

	prep, err := New(nil, 0, nil).Prepare(context.Background(), testProfile(), posting)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !hasQuestionWith(prep, "Accueil des clients en boutique") {
		t.Fatalf("expected a question quoting the description, got %+v", prep.Questions)
	}

	if got := Requirements(&postings.Posting{Title: "Vendeur"}); len(got) != 0 {
		t.Fatalf("expected no requirements without a description, got %v", got)
	}
}

func TestRequirementsFromDescription(t *testing.T) {
	posting := &postings.Posting{
		Title:       "Comptable",
		Description: "Vous rejoignez une équipe dynamique. Maîtrise de SAP exigée ; expérience de 3 ans requise. Poste en centre-ville.",
	}

	got := Requirements(posting)
	want := []string{"Maîtrise de SAP exigée", "expérience de 3 ans requise"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	prep, err := New(nil, 0, nil).Prepare(context.Background(), nil, posting)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !hasQuestionWith(prep, "Maîtrise de SAP exigée") {
		t.Fatalf("expected a question quoting the requirement sentence, got %+v", prep.Questions)
	}
}
