package assistant

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-assistant/internal/advice"
	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/coach"
	"github.com/spigell/career-assistant/internal/events"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textextract"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubProfiles struct {
	profile *profile.Profile
	err     error
	texts   []string
}

func (s *stubProfiles) Extract(_ context.Context, rawText string) (*profile.Profile, error) {
	s.texts = append(s.texts, rawText)
	return s.profile, s.err
}

type stubSearcher struct {
	mu      sync.Mutex
	items   []*postings.Posting
	err     error
	queries []postings.Query
	started chan struct{}
	release chan struct{}
}

func (s *stubSearcher) Search(ctx context.Context, q postings.Query) ([]*postings.Posting, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	if s.started != nil {
		close(s.started)
		<-s.release
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.items, s.err
}

func (s *stubSearcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type stubChat struct {
	reply string
	err   error
	reqs  []ai.Request
}

func (s *stubChat) Generate(_ context.Context, req ai.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.reply, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TurnCompleted
}

func (p *recordingPublisher) PublishTurn(_ context.Context, e events.TurnCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) last() events.TurnCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		FullName: "Ada Lovelace",
		Location: "Paris",
		Skills:   []string{"python", "sql"},
		Experiences: []profile.Experience{
			{Title: "Data Engineer", Organization: "Analytical Engines"},
		},
	}
}

func testPostings() []*postings.Posting {
	return []*postings.Posting{
		{
			ID:             "201ABC",
			Title:          "Data Engineer",
			Employer:       "Acme",
			Location:       postings.Location{Label: "69 - Lyon"},
			Description:    strings.Repeat("Build data pipelines with Python and SQL on Docker. ", 10),
			RequiredSkills: []string{"Python", "SQL", "Docker"},
			PostedAt:       testNow.Add(-24 * time.Hour),
			URL:            "https://example.test/201ABC",
		},
		{
			ID:             "202XYZ",
			Title:          "Java Developer",
			RequiredSkills: []string{"Java"},
			PostedAt:       testNow,
		},
	}
}

type fixture struct {
	service   *Service
	profiles  *stubProfiles
	searcher  *stubSearcher
	chat      *stubChat
	published *recordingPublisher
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T, chat *stubChat, opts ...func(*Deps)) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	searcher := &stubSearcher{items: testPostings()}
	matcher, err := matching.New(searcher, matching.DefaultWeights(), log, matching.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}

	f := &fixture{
		profiles:  &stubProfiles{profile: testProfile()},
		searcher:  searcher,
		chat:      chat,
		published: &recordingPublisher{},
		logs:      logs,
	}
	deps := Deps{
		Sessions: session.NewRegistry(time.Hour, log),
		Router:   router.New(nil, log),
		Profiles: f.profiles,
		Matcher:  matcher,
		Coach:    coach.New(nil, 0, log),
		Events:   f.published,
		Logger:   log,
	}
	if chat != nil {
		deps.Chat = chat
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.service = New(deps)
	return f
}

func resumeDoc() *textextract.Document {
	return &textextract.Document{
		Name: "cv.txt",
		MIME: textextract.MIMEText,
		Data: []byte("Ada Lovelace\nData Engineer at Analytical Engines\nSkills: Python, SQL"),
	}
}

func (f *fixture) turn(t *testing.T, id, text string, doc *textextract.Document) Response {
	t.Helper()
	resp := f.service.HandleTurn(context.Background(), id, text, doc)
	if resp.Text == "" {
		t.Fatalf("turn %q produced an empty reply", text)
	}
	return resp
}

func (f *fixture) snapshot(t *testing.T, id string) session.Snapshot {
	t.Helper()
	snap, ok := f.service.Snapshot(id)
	if !ok {
		t.Fatalf("session %s is not open", id)
	}
	return snap
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t, nil)

	hello := f.turn(t, "", "Hello!", nil)
	if hello.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	id := hello.SessionID
	if !strings.Contains(hello.Text, "Upload your résumé") {
		t.Fatalf("unexpected greeting: %q", hello.Text)
	}

	early := f.turn(t, id, "find python jobs", nil)
	if !strings.Contains(early.Text, "upload your résumé first") || f.searcher.calls() != 0 {
		t.Fatalf("search without profile must ask for a résumé: %q", early.Text)
	}

	uploaded := f.turn(t, id, "", resumeDoc())
	if _, ok := uploaded.Payload.(*profile.Profile); !ok {
		t.Fatalf("expected profile payload, got %T", uploaded.Payload)
	}
	if !strings.Contains(f.profiles.texts[0], "Analytical Engines") {
		t.Fatalf("extractor got %q", f.profiles.texts[0])
	}
	if got := f.snapshot(t, id).Phase; got != session.ProfileReady {
		t.Fatalf("phase = %s, want %s", got, session.ProfileReady)
	}

	search := f.turn(t, id, "Find data jobs in Lyon", nil)
	rs, ok := search.Payload.(*matching.ResultSet)
	if !ok || rs.Len() != 1 || rs.Posting(1).ID != "201ABC" {
		t.Fatalf("unexpected search payload: %#v", search.Payload)
	}
	if q := f.searcher.queries[0]; q.Location != "Lyon" || q.Keywords == "" {
		t.Fatalf("unexpected query: %+v", q)
	}
	if !strings.Contains(search.Text, "1. Data Engineer / Acme / 69 - Lyon") || !strings.Contains(search.Text, "https://example.test/201ABC") {
		t.Fatalf("unexpected search reply:\n%s", search.Text)
	}
	if strings.Contains(search.Text, strings.Repeat("Build data pipelines with Python and SQL on Docker. ", 5)) {
		t.Fatalf("description was not shortened:\n%s", search.Text)
	}
	if got := f.snapshot(t, id).Phase; got != session.ResultsReady {
		t.Fatalf("phase = %s, want %s", got, session.ResultsReady)
	}

	rec := f.turn(t, id, "What skills should I learn?", nil)
	recommendation, ok := rec.Payload.(*Recommendation)
	if !ok || len(recommendation.Suggestions) != 1 || recommendation.Suggestions[0].Skill != "docker" || recommendation.Advice != nil {
		t.Fatalf("unexpected recommendation: %#v", rec.Payload)
	}
	if f.searcher.calls() != 1 {
		t.Fatalf("recommend must reuse the listed postings")
	}

	prep := f.turn(t, id, "Prepare me for an interview for #1", nil)
	p, ok := prep.Payload.(*coach.Prep)
	if !ok || p.PostingID != "201ABC" || len(p.Questions) == 0 {
		t.Fatalf("unexpected prep payload: %#v", prep.Payload)
	}

	snap := f.snapshot(t, id)
	if snap.Phase != session.InCoaching || snap.Active.PostingID != "201ABC" {
		t.Fatalf("unexpected state after coaching: %s %+v", snap.Phase, snap.Active)
	}
	if len(snap.History) != 12 {
		t.Fatalf("history has %d turns, want 12", len(snap.History))
	}

	event := f.published.last()
	if event.SessionID != id || event.Capability != string(router.InterviewPrep) || event.Phase != session.InCoaching.String() {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestAPIFailureBecomesReply(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "", resumeDoc()).SessionID

	f.searcher.err = &postings.APIError{Kind: postings.KindRateLimited, Status: 429}
	resp := f.turn(t, id, "find jobs", nil)

	if !strings.Contains(resp.Text, "busy") || resp.Payload != nil {
		t.Fatalf("unexpected reply: %q %#v", resp.Text, resp.Payload)
	}
	if got := f.snapshot(t, id).Phase; got != session.ProfileReady {
		t.Fatalf("phase changed on failure: %s", got)
	}
	if got := f.published.last().Failure; got != "api_rate_limited" {
		t.Fatalf("failure = %q", got)
	}
}

func TestExtractionFailures(t *testing.T) {
	f := newFixture(t, nil)

	empty := f.turn(t, "", "", &textextract.Document{Name: "cv.pdf"})
	if !strings.Contains(empty.Text, "could not read that document") {
		t.Fatalf("unexpected reply: %q", empty.Text)
	}

	f.profiles.profile = nil
	f.profiles.err = &profile.ExtractionFailed{Reason: "model output could not be parsed"}
	bad := f.turn(t, empty.SessionID, "", resumeDoc())
	if !strings.Contains(bad.Text, "could not extract a profile") {
		t.Fatalf("unexpected reply: %q", bad.Text)
	}
	if f.snapshot(t, empty.SessionID).HasProfile() {
		t.Fatalf("failed extraction installed a profile")
	}
}

func TestInvalidMutationIsLoggedAndApologized(t *testing.T) {
	f := newFixture(t, nil)
	f.profiles.profile = nil

	resp := f.turn(t, "", "", resumeDoc())
	if resp.Text != apologyReply {
		t.Fatalf("unexpected reply: %q", resp.Text)
	}

	if f.logs.FilterMessage("invalid session mutation").FilterField(zap.String("capability", string(router.AnalyzeResume))).Len() != 1 {
		t.Fatalf("expected an error log for the invalid mutation")
	}
	entry := f.logs.FilterMessage("invalid session mutation").All()[0]
	if entry.Level != zapcore.ErrorLevel {
		t.Fatalf("level = %s, want error", entry.Level)
	}

	snap := f.snapshot(t, resp.SessionID)
	if snap.HasProfile() || len(snap.History) != 1 {
		t.Fatalf("session changed: profile=%t history=%d", snap.HasProfile(), len(snap.History))
	}
}

func TestCancelledTurn(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "", resumeDoc()).SessionID

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.service.HandleTurn(ctx, id, "find jobs", nil)
	if resp.Text != cancelledReply {
		t.Fatalf("unexpected reply: %q", resp.Text)
	}
	if got := f.published.last().Failure; got != "cancelled" {
		t.Fatalf("failure = %q", got)
	}
}

func TestNewerTurnDiscardsStaleResults(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "", resumeDoc()).SessionID

	f.searcher.started = make(chan struct{})
	f.searcher.release = make(chan struct{})

	first := make(chan Response, 1)
	go func() {
		first <- f.service.HandleTurn(context.Background(), id, "find jobs", nil)
	}()

	<-f.searcher.started
	f.turn(t, id, "hello", nil)
	close(f.searcher.release)

	resp := <-first
	if resp.Text != supersededReply || resp.Payload != nil {
		t.Fatalf("unexpected reply for the stale turn: %q", resp.Text)
	}

	snap := f.snapshot(t, id)
	if snap.LastResults != nil || snap.Phase != session.ProfileReady {
		t.Fatalf("stale results were applied: %s", snap.Phase)
	}
	if !f.published.last().Stale {
		t.Fatalf("expected the stale turn to be reported")
	}
}

func TestGeneralChat(t *testing.T) {
	chat := &stubChat{reply: "  Bonjour ! Comment puis-je vous aider ?  "}
	f := newFixture(t, chat)

	id := f.turn(t, "", "", resumeDoc()).SessionID
	resp := f.turn(t, id, "salut", nil)

	if resp.Text != "Bonjour ! Comment puis-je vous aider ?" {
		t.Fatalf("unexpected reply: %q", resp.Text)
	}
	prompt := chat.reqs[0].Prompt
	for _, want := range []string{"Skills: python, sql", "assistant: I read your résumé.", "user: salut"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt misses %q:\n%s", want, prompt)
		}
	}
	if strings.Count(prompt, "user: salut") != 1 {
		t.Fatalf("current message repeated in prompt:\n%s", prompt)
	}

	chat.err = ai.NewModelError(ai.KindUnavailable, nil)
	fallback := f.turn(t, id, "bonjour", nil)
	if !strings.Contains(fallback.Text, "search for jobs") {
		t.Fatalf("unexpected fallback: %q", fallback.Text)
	}
}

const adviceReply = `{
  "cv_improvements": ["Quantify the impact of your pipelines"],
  "highlighted_skills": ["Python"],
  "career_advice": "Aim for data platform teams."
}`

func TestRecommendWithAdvice(t *testing.T) {
	model := &stubChat{reply: adviceReply}
	f := newFixture(t, nil, func(d *Deps) {
		d.Adviser = advice.New(model, 0, d.Logger)
	})
	id := f.turn(t, "", "", resumeDoc()).SessionID
	f.turn(t, id, "Find data jobs in Lyon", nil)

	resp := f.turn(t, id, "What skills should I learn?", nil)
	rec, ok := resp.Payload.(*Recommendation)
	if !ok || rec.Advice == nil || len(rec.Suggestions) != 1 {
		t.Fatalf("unexpected payload: %#v", resp.Payload)
	}
	for _, want := range []string{"- docker:", "Skills to put forward: python", "- Quantify the impact of your pipelines", "Career advice: Aim for data platform teams."} {
		if !strings.Contains(resp.Text, want) {
			t.Fatalf("reply misses %q:\n%s", want, resp.Text)
		}
	}
	if !strings.Contains(model.reqs[0].Prompt, "docker: 1") {
		t.Fatalf("advice prompt misses the skill gaps:\n%s", model.reqs[0].Prompt)
	}
}

func TestImproveResumeWithoutJobSearch(t *testing.T) {
	model := &stubChat{reply: adviceReply}
	f := newFixture(t, nil, func(d *Deps) {
		d.Matcher = nil
		d.Adviser = advice.New(model, 0, d.Logger)
	})
	id := f.turn(t, "", "", resumeDoc()).SessionID

	resp := f.turn(t, id, "How can I improve my CV?", nil)
	if !strings.Contains(resp.Text, "Résumé improvements:") || strings.Contains(resp.Text, "Skills worth adding") {
		t.Fatalf("unexpected reply:\n%s", resp.Text)
	}
	if f.searcher.calls() != 0 {
		t.Fatalf("no search backend is configured")
	}
	if got := f.snapshot(t, id).Active.Capability; got != string(router.Recommend) {
		t.Fatalf("active capability = %q", got)
	}

	model.err = ai.NewModelError(ai.KindUnavailable, nil)
	failed := f.turn(t, id, "How can I improve my CV?", nil)
	if got := f.published.last().Failure; got != "not_configured" {
		t.Fatalf("failure = %q, reply %q", got, failed.Text)
	}
}

func TestResetStartsOver(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "", resumeDoc()).SessionID

	if err := f.service.Reset(context.Background(), id); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok := f.service.Snapshot(id); ok {
		t.Fatalf("session still open after reset")
	}

	resp := f.turn(t, id, "find jobs", nil)
	if resp.SessionID != id || !strings.Contains(resp.Text, "upload your résumé first") {
		t.Fatalf("unexpected reply after reset: %q", resp.Text)
	}
}

func TestClarificationForUnknownPosting(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "", resumeDoc()).SessionID
	f.turn(t, id, "find jobs", nil)

	resp := f.turn(t, id, "interview for #4", nil)
	if !strings.Contains(resp.Text, "only 1 postings are listed") {
		t.Fatalf("unexpected reply: %q", resp.Text)
	}
}
