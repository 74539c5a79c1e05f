// Package assistant handles one user turn at a time: it routes the message,
// calls the capability that owns it and writes the outcome back to the session.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/advice"
	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/coach"
	"github.com/spigell/career-assistant/internal/events"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textextract"
)

type ProfileExtractor interface {
	Extract(ctx context.Context, rawText string) (*profile.Profile, error)
}

type JobMatcher interface {
	Match(ctx context.Context, p *profile.Profile, q postings.Query) (*matching.ResultSet, error)
}

type InterviewCoach interface {
	Prepare(ctx context.Context, p *profile.Profile, posting *postings.Posting) (*coach.Prep, error)
}

type CareerAdviser interface {
	Advise(ctx context.Context, p *profile.Profile, rs *matching.ResultSet, gaps []matching.Suggestion) (*advice.Advice, error)
}

// Deps are the collaborators of a Service. Chat and Events may be nil.
type Deps struct {
	Sessions  *session.Registry
	Router    *router.Router
	Documents textextract.Extractor
	Profiles  ProfileExtractor
	Matcher   JobMatcher
	Coach     InterviewCoach
	Adviser   CareerAdviser
	Chat      ai.Generator
	Events    events.Publisher
	Logger    *zap.Logger
}

// Response is what the caller shows for a turn.
type Response struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	// Payload is the structured result behind Text: *profile.Profile,
	// *matching.ResultSet, *Recommendation or *coach.Prep.
	Payload any `json:"payload,omitempty"`
}

type Service struct {
	sessions  *session.Registry
	router    *router.Router
	documents textextract.Extractor
	profiles  ProfileExtractor
	matcher   JobMatcher
	coach     InterviewCoach
	adviser   CareerAdviser
	chat      ai.Generator
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(deps Deps) *Service {
	s := &Service{
		sessions:  deps.Sessions,
		router:    deps.Router,
		documents: deps.Documents,
		profiles:  deps.Profiles,
		matcher:   deps.Matcher,
		coach:     deps.Coach,
		adviser:   deps.Adviser,
		chat:      deps.Chat,
		events:    deps.Events,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry(session.DefaultIdleTimeout, s.logger)
	}
	if s.router == nil {
		s.router = router.New(nil, s.logger)
	}
	if s.documents == nil {
		s.documents = textextract.Default{}
	}
	if s.coach == nil {
		s.coach = coach.New(nil, 0, s.logger)
	}
	if s.adviser == nil {
		s.adviser = advice.New(nil, 0, s.logger)
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

// outcome is what a capability hands back to the turn handler.
type outcome struct {
	text      string
	payload   any
	mutations []session.Mutation
	err       error
}

// HandleTurn processes one user message, optionally with an uploaded document.
// An empty sessionID opens a new session. It never fails: every error is turned
// into a reply.
func (s *Service) HandleTurn(ctx context.Context, sessionID, text string, doc *textextract.Document) Response {
	started := s.now()
	m, _ := s.sessions.Open(sessionID)
	resp := Response{SessionID: m.ID()}
	log := logger.WithFields(s.logger, logger.SessionFields(m.ID(), 0)...)

	turnCtx, release, guard, err := m.BeginTurn(ctx, strings.TrimSpace(text))
	if err != nil {
		resp.Text, _ = s.failure(log, "", err)
		return resp
	}
	defer release()

	log = log.With(zap.Uint64(logger.FieldTurn, guard.Turn))
	snap := m.Snapshot()
	decision := s.router.Route(turnCtx, router.Message{Text: text, HasDocument: doc != nil}, snap)
	log.Debug("routed turn", zap.String("decision", decision.String()))

	out := s.dispatch(turnCtx, decision, snap, text, doc)

	failure := ""
	if out.err != nil {
		out.text, failure = s.failure(log, decision.Capability, out.err)
		out.payload = nil
		out.mutations = nil
	}

	muts := append(out.mutations, session.AppendTurn{Turn: session.Turn{Role: session.RoleAssistant, Text: out.text}})
	after, err := m.ApplyIf(guard, muts...)
	stale := errors.Is(err, session.ErrStale)
	switch {
	case stale:
		out.text, out.payload = supersededReply, nil
	case err != nil:
		out.text, failure = s.failure(log, decision.Capability, err)
		out.payload = nil
	}

	resp.Text, resp.Payload = out.text, out.payload
	s.publish(ctx, log, events.TurnCompleted{
		SessionID:  m.ID(),
		Turn:       guard.Turn,
		Decision:   decision.Kind.String(),
		Capability: string(decision.Capability),
		Phase:      after.Phase.String(),
		Failure:    failure,
		Stale:      stale,
		Duration:   s.now().Sub(started),
		At:         s.now(),
	})

	return resp
}

func (s *Service) dispatch(ctx context.Context, d router.Decision, snap session.Snapshot, text string, doc *textextract.Document) outcome {
	switch d.Kind {
	case router.Clarify:
		return outcome{text: clarification(d.Reason)}
	case router.Unroutable:
		return outcome{text: unroutableReply}
	}

	switch d.Capability {
	case router.AnalyzeResume:
		return s.analyzeResume(ctx, snap, doc)
	case router.JobSearch:
		return s.searchJobs(ctx, snap, d.Params)
	case router.Recommend:
		return s.recommend(ctx, snap, d.Params)
	case router.InterviewPrep:
		return s.prepareInterview(ctx, snap, d.Params)
	default:
		return s.generalChat(ctx, snap, text)
	}
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, event events.TurnCompleted) {
	if err := s.events.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("publishing turn event failed", zap.Error(err))
	}
}

// Snapshot returns the state of a session, if it is open.
func (s *Service) Snapshot(sessionID string) (session.Snapshot, bool) {
	m, ok := s.sessions.Get(sessionID)
	if !ok {
		return session.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// Reset ends a session. The next turn with the same id starts from scratch.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.sessions.Close(ctx, sessionID)
}

// Close ends every open session.
func (s *Service) Close(ctx context.Context) error {
	s.sessions.CloseAll(ctx)
	return s.events.Close()
}
