package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/advice"
	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textextract"
)

const (
	chatTurns = 6

	chatSystem = `You are a friendly career assistant for job seekers in France.
You can analyze an uploaded résumé, search France Travail job postings, recommend skills to learn
and prepare the user for interviews. Answer briefly in the language the user writes in.
When the user asks for one of these tasks, tell them what to type or upload.`
)

// notConfiguredError reports a capability whose backend was not set up.
type notConfiguredError struct {
	capability router.Capability
}

func (e *notConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured", e.capability)
}

func (s *Service) analyzeResume(ctx context.Context, snap session.Snapshot, doc *textextract.Document) outcome {
	if doc == nil {
		if snap.Profile == nil {
			return outcome{text: clarification(router.ReasonNoProfile)}
		}
		return outcome{text: profileReply(snap.Profile, false), payload: snap.Profile}
	}
	if s.profiles == nil {
		return outcome{err: &notConfiguredError{capability: router.AnalyzeResume}}
	}

	raw, err := s.documents.Extract(*doc)
	if err != nil {
		return outcome{err: err}
	}
	p, err := s.profiles.Extract(ctx, raw)
	if err != nil {
		return outcome{err: err}
	}

	return outcome{
		text:      profileReply(p, true),
		payload:   p,
		mutations: []session.Mutation{session.SetProfile{Profile: p}},
	}
}

func (s *Service) search(ctx context.Context, snap session.Snapshot, params router.Params) (*matching.ResultSet, error) {
	if s.matcher == nil {
		return nil, &notConfiguredError{capability: router.JobSearch}
	}
	q := postings.Query{
		Location: params.Location,
		Filters:  postings.Filters{Contract: params.Contract},
	}
	if q.Filters.Contract == "" {
		q.Filters.Contract = snap.Profile.DesiredContract
	}
	return s.matcher.Match(ctx, snap.Profile, q)
}

func (s *Service) searchJobs(ctx context.Context, snap session.Snapshot, params router.Params) outcome {
	if snap.Profile == nil {
		return outcome{text: clarification(router.ReasonNoProfile)}
	}

	rs, err := s.search(ctx, snap, params)
	if err != nil {
		return outcome{err: err}
	}

	return outcome{
		text:    resultsReply(rs),
		payload: rs,
		mutations: []session.Mutation{
			session.SetResults{Results: rs},
			session.SetActiveContext{Context: session.ActiveContext{Capability: string(router.JobSearch)}},
		},
	}
}

// Recommendation is the payload of a recommend turn.
type Recommendation struct {
	Suggestions []matching.Suggestion `json:"suggestions"`
	Advice      *advice.Advice        `json:"advice,omitempty"`
}

// recommend works on the listed postings and searches first when there are none.
// Without a job search backend it still answers from the profile when the adviser can.
func (s *Service) recommend(ctx context.Context, snap session.Snapshot, params router.Params) outcome {
	if snap.Profile == nil {
		return outcome{text: clarification(router.ReasonNoProfile)}
	}

	var muts []session.Mutation
	rs := snap.LastResults
	if rs == nil && s.matcher != nil {
		var err error
		if rs, err = s.search(ctx, snap, params); err != nil {
			return outcome{err: err}
		}
		muts = append(muts, session.SetResults{Results: rs})
	}

	rec := &Recommendation{Suggestions: matching.Recommend(snap.Profile, rs)}
	adv, err := s.adviser.Advise(ctx, snap.Profile, rs, rec.Suggestions)
	if err != nil {
		return outcome{err: err}
	}
	rec.Advice = adv
	if rs == nil && adv == nil {
		return outcome{err: &notConfiguredError{capability: router.Recommend}}
	}

	muts = append(muts, session.SetActiveContext{Context: session.ActiveContext{Capability: string(router.Recommend)}})

	return outcome{
		text:      recommendationsReply(rec, rs),
		payload:   rec,
		mutations: muts,
	}
}

func (s *Service) prepareInterview(ctx context.Context, snap session.Snapshot, params router.Params) outcome {
	posting := snap.LastResults.Find(params.PostingID)
	if posting == nil && snap.Profile == nil {
		return outcome{text: clarification(router.ReasonNoCoachContext)}
	}

	prep, err := s.coach.Prepare(ctx, snap.Profile, posting)
	if err != nil {
		return outcome{err: err}
	}

	postingID := ""
	if posting != nil {
		postingID = posting.ID
	}

	return outcome{
		text:      prepReply(prep, posting),
		payload:   prep,
		mutations: []session.Mutation{session.EnterCoaching{PostingID: postingID}},
	}
}

// generalChat answers with the model and falls back to a help message when it is unavailable.
func (s *Service) generalChat(ctx context.Context, snap session.Snapshot, text string) outcome {
	if s.chat == nil {
		return outcome{text: helpReply(snap)}
	}

	reply, err := s.chat.Generate(ctx, ai.Request{
		Label:  "general_chat",
		System: chatSystem,
		Prompt: chatPrompt(snap, text),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return outcome{err: err}
		}
		s.logger.Warn("general chat failed, answering with help", zap.Error(err))
		return outcome{text: helpReply(snap)}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return outcome{text: helpReply(snap)}
	}
	return outcome{text: reply}
}

func chatPrompt(snap session.Snapshot, text string) string {
	var b strings.Builder
	if snap.Profile != nil {
		fmt.Fprintf(&b, "The user uploaded a résumé. Skills: %s.\n", strings.Join(firstN(snap.Profile.Skills, 10), ", "))
	}
	if n := snap.LastResults.Len(); n > 0 {
		fmt.Fprintf(&b, "%d job postings are listed in the conversation.\n", n)
	}

	recent := snap.Recent(chatTurns)
	if len(recent) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	last := len(recent) > 0 && recent[len(recent)-1].Role == session.RoleUser && recent[len(recent)-1].Text == strings.TrimSpace(text)
	if !last {
		fmt.Fprintf(&b, "user: %s\n", text)
	}
	b.WriteString("\nReply to the last user message.")
	return b.String()
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
