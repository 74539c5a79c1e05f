package profile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/retry"
)

type stubGenerator struct {
	response    string
	err         error
	calls       int
	lastRequest ai.Request
}

func (s *stubGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	s.calls++
	s.lastRequest = req
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

// blockingGenerator never answers before the deadline.
type blockingGenerator struct {
	calls int
}

func (b *blockingGenerator) Generate(ctx context.Context, _ ai.Request) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

const noisyResume = `{
  "full_name": "Jane Doe",
  "desired_job": "Data Engineer",
  "desired_contract": "Alternance",
  "skills": ["Python", " python ", "SQL", "Golang", "", "Docker."],
  "languages": ["French", "english", "French"],
  "experiences": [
    {"title": "Data Analyst", "organization": "Acme", "start": "2019-01", "end": "2020-06"},
    {"organization": "No Title Corp", "start": "2021-01"},
    {"title": "Data Engineer", "organization": "Globex", "start": "2021-03", "end": "present"},
    {"title": "Intern", "organization": "Initech", "start": "not a date"},
    "garbage"
  ],
  "education": [
    {"institution": "Université de Lyon", "credential": "Master Informatique", "start": "2016", "end": "2018"},
    {"field_of_study": "History"}
  ]
}`

func TestExtractValidatesFieldByField(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + noisyResume + "\n```"}
	extractor := NewExtractor(stub, time.Second, zap.NewNop())

	p, err := extractor.Extract(context.Background(), "Jane Doe\nData Engineer at Globex")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSkills := []string{"docker", "go", "python", "sql"}
	if strings.Join(p.Skills, ",") != strings.Join(wantSkills, ",") {
		t.Fatalf("unexpected skills: %v", p.Skills)
	}

	if len(p.Experiences) != 3 {
		t.Fatalf("expected 3 valid experiences, got %d: %+v", len(p.Experiences), p.Experiences)
	}
	for _, exp := range p.Experiences {
		if exp.Title == "" {
			t.Fatalf("experience without title leaked: %+v", exp)
		}
	}
	if p.Experiences[0].Title != "Data Engineer" || !p.Experiences[0].Period.Current() {
		t.Fatalf("expected current position first, got %+v", p.Experiences[0])
	}
	if p.Experiences[1].Title != "Data Analyst" {
		t.Fatalf("expected older position second, got %+v", p.Experiences[1])
	}
	if p.Experiences[2].Title != "Intern" || p.Experiences[2].Period.Start != nil {
		t.Fatalf("expected undated position last, got %+v", p.Experiences[2])
	}

	if len(p.Education) != 1 || p.Education[0].Credential != "Master Informatique" {
		t.Fatalf("unexpected education: %+v", p.Education)
	}

	if p.DesiredContract != "ALT" {
		t.Fatalf("expected contract code ALT, got %q", p.DesiredContract)
	}
	if len(p.Languages) != 2 {
		t.Fatalf("expected deduplicated languages, got %v", p.Languages)
	}
	if p.RawTextDigest != Digest("Jane Doe\nData Engineer at Globex") {
		t.Fatalf("digest does not reference the source text")
	}

	if stub.lastRequest.Schema == nil || stub.lastRequest.Timeout != time.Second {
		t.Fatalf("expected a structured, time-bounded request: %+v", stub.lastRequest)
	}
	if !strings.Contains(stub.lastRequest.Prompt, "Data Engineer at Globex") {
		t.Fatalf("résumé text missing from prompt")
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		stub   *stubGenerator
		reason string
		calls  int
	}{
		{
			name:   "empty text",
			text:   "   \n",
			stub:   &stubGenerator{},
			reason: "empty résumé text",
		},
		{
			name:   "unparseable output",
			text:   "resume",
			stub:   &stubGenerator{response: "Sure! Here is the profile you asked for."},
			reason: "could not be parsed",
			calls:  1,
		},
		{
			name:   "nothing extracted",
			text:   "resume",
			stub:   &stubGenerator{response: `{"skills": [], "experiences": [{"organization": "x"}], "education": []}`},
			reason: "no profile information",
			calls:  1,
		},
		{
			name:   "model unavailable",
			text:   "resume",
			stub:   &stubGenerator{err: ai.NewModelError(ai.KindUnavailable, errors.New("503"))},
			reason: "language model call failed",
			calls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(tt.stub, time.Second, nil).Extract(context.Background(), tt.text)

			var failed *ExtractionFailed
			if !errors.As(err, &failed) {
				t.Fatalf("expected ExtractionFailed, got %v", err)
			}
			if !strings.Contains(failed.Reason, tt.reason) {
				t.Fatalf("expected reason %q, got %q", tt.reason, failed.Reason)
			}
			if tt.stub.calls != tt.calls {
				t.Fatalf("expected %d model calls, got %d", tt.calls, tt.stub.calls)
			}
		})
	}
}

func TestExtractGivesUpAfterTwoTimeouts(t *testing.T) {
	blocking := &blockingGenerator{}
	generator := ai.NewRetrying(blocking, retry.DefaultPolicy(), 50*time.Millisecond, nil)

	start := time.Now()
	_, err := NewExtractor(generator, 0, nil).Extract(context.Background(), "Jane Doe, Go developer")

	var failed *ExtractionFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected ExtractionFailed, got %v", err)
	}
	if kind, ok := ai.KindOf(err); !ok || kind != ai.KindTimeout {
		t.Fatalf("expected timeout cause, got %v", err)
	}
	if blocking.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", blocking.calls)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("extraction was not time bounded: %v", elapsed)
	}
}

func TestExtractPassesCancellationThrough(t *testing.T) {
	stub := &stubGenerator{err: context.Canceled}
	_, err := NewExtractor(stub, 0, nil).Extract(context.Background(), "resume")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
