// Package session holds the conversation state of one user: the extracted profile,
// the last result set, the transcript and the current phase. All writes go through
// mutations applied by a single Manager.
package session

import (
	"slices"
	"time"

	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/profile"
)

// Phase is the position of a session in the conversation state machine.
type Phase int

const (
	NoProfile Phase = iota
	ProfileReady
	ResultsReady
	InCoaching
)

func (p Phase) String() string {
	switch p {
	case ProfileReady:
		return "profile_ready"
	case ResultsReady:
		return "results_ready"
	case InCoaching:
		return "in_coaching"
	default:
		return "no_profile"
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ActiveContext is what follow-up messages such as "that one" refer to.
type ActiveContext struct {
	Capability string `json:"capability,omitempty"`
	PostingID  string `json:"posting_id,omitempty"`
}

// Snapshot is a copy of the session state. Changing it has no effect on the session.
type Snapshot struct {
	ID          string              `json:"id"`
	Phase       Phase               `json:"phase"`
	Profile     *profile.Profile    `json:"profile,omitempty"`
	LastResults *matching.ResultSet `json:"last_results,omitempty"`
	History     []Turn              `json:"history"`
	Active      ActiveContext       `json:"active_context"`
	// Version counts applied mutation batches.
	Version uint64 `json:"version"`
	// Turn counts user turns.
	Turn      uint64    `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.Profile = s.Profile.Clone()
	s.LastResults = s.LastResults.Clone()
	s.History = slices.Clone(s.History)
	return s
}

// HasProfile reports whether a profile is installed.
func (s Snapshot) HasProfile() bool {
	return s.Profile != nil
}

// Recent returns up to n last transcript turns.
func (s Snapshot) Recent(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return slices.Clone(s.History)
	}
	return slices.Clone(s.History[len(s.History)-n:])
}

// Guard captures the point a turn started from. A batch applied with ApplyIf is
// discarded when the session has moved past it.
type Guard struct {
	Turn   uint64
	Active ActiveContext
}

func (s Snapshot) Guard() Guard {
	return Guard{Turn: s.Turn, Active: s.Active}
}
