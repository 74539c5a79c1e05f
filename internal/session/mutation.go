package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/profile"
)

// ErrStale is returned by ApplyIf when a newer turn or context superseded the guard.
var ErrStale = errors.New("session moved on, result discarded")

// InvalidMutationError reports a mutation that cannot be applied to the current state.
// The whole batch it was part of is rejected.
type InvalidMutationError struct {
	Mutation string
	Phase    Phase
	Reason   string
}

func (e *InvalidMutationError) Error() string {
	return fmt.Sprintf("invalid mutation %s in phase %s: %s", e.Mutation, e.Phase, e.Reason)
}

// Mutation is one of SetProfile, SetResults, AppendTurn, SetActiveContext,
// EnterCoaching and ClearResults.
type Mutation interface {
	mutationName() string
}

// SetProfile installs a profile. Earlier results and the active context are dropped.
type SetProfile struct {
	Profile *profile.Profile
}

// SetResults replaces the last result set.
type SetResults struct {
	Results *matching.ResultSet
}

// AppendTurn adds a transcript entry. A user turn starts a new turn.
type AppendTurn struct {
	Turn Turn
}

type SetActiveContext struct {
	Context ActiveContext
}

// EnterCoaching starts interview preparation, optionally for a posting.
type EnterCoaching struct {
	PostingID string
}

type ClearResults struct{}

func (SetProfile) mutationName() string       { return "set_profile" }
func (SetResults) mutationName() string       { return "set_results" }
func (AppendTurn) mutationName() string       { return "append_turn" }
func (SetActiveContext) mutationName() string { return "set_active_context" }
func (EnterCoaching) mutationName() string    { return "enter_coaching" }
func (ClearResults) mutationName() string     { return "clear_results" }

const interviewPrepCapability = "interview_prep"

// apply changes s in place. The caller owns s and discards it on error.
func apply(s *Snapshot, m Mutation, now time.Time) error {
	invalid := func(name, reason string) error {
		return &InvalidMutationError{Mutation: name, Phase: s.Phase, Reason: reason}
	}

	switch m := m.(type) {
	case SetProfile:
		if m.Profile == nil {
			return invalid(m.mutationName(), "profile is nil")
		}
		s.Profile = m.Profile.Clone()
		s.LastResults = nil
		s.Active = ActiveContext{}
		s.Phase = ProfileReady

	case SetResults:
		if m.Results == nil {
			return invalid(m.mutationName(), "result set is nil")
		}
		if s.Phase == NoProfile {
			return invalid(m.mutationName(), "no profile installed")
		}
		s.LastResults = m.Results.Clone()
		s.Phase = ResultsReady

	case AppendTurn:
		if m.Turn.Role != RoleUser && m.Turn.Role != RoleAssistant {
			return invalid(m.mutationName(), fmt.Sprintf("unknown role %q", m.Turn.Role))
		}
		if strings.TrimSpace(m.Turn.Text) == "" && m.Turn.Role == RoleAssistant {
			return invalid(m.mutationName(), "empty assistant turn")
		}
		turn := m.Turn
		if turn.At.IsZero() {
			turn.At = now
		}
		s.History = append(s.History, turn)
		if turn.Role == RoleUser {
			s.Turn++
		}

	case SetActiveContext:
		s.Active = m.Context

	case EnterCoaching:
		if s.Phase == NoProfile && m.PostingID == "" {
			return invalid(m.mutationName(), "coaching without a profile needs a posting")
		}
		s.Active = ActiveContext{Capability: interviewPrepCapability, PostingID: m.PostingID}
		s.Phase = InCoaching

	case ClearResults:
		s.LastResults = nil
		s.Active = ActiveContext{}
		if s.Profile != nil {
			s.Phase = ProfileReady
		} else {
			s.Phase = NoProfile
		}

	case nil:
		return invalid("<nil>", "nil mutation")

	default:
		return invalid(fmt.Sprintf("%T", m), "unknown mutation type")
	}

	return nil
}
