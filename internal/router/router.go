// Package router decides which capability handles a user message. Keyword rules
// run first; a language model classifier is consulted only when no rule matches.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textnorm"
)

type Capability string

const (
	AnalyzeResume Capability = "analyze_resume"
	JobSearch     Capability = "job_search"
	Recommend     Capability = "recommend"
	InterviewPrep Capability = "interview_prep"
	GeneralChat   Capability = "general_chat"
)

// Capabilities lists every capability in a stable order.
var Capabilities = []Capability{AnalyzeResume, JobSearch, Recommend, InterviewPrep, GeneralChat}

func ParseCapability(value string) (Capability, bool) {
	folded := textnorm.Fold(value)
	for _, c := range Capabilities {
		if folded == string(c) {
			return c, true
		}
	}
	return "", false
}

type Kind int

const (
	Dispatch Kind = iota
	Clarify
	Unroutable
)

func (k Kind) String() string {
	switch k {
	case Dispatch:
		return "dispatch"
	case Clarify:
		return "clarify"
	default:
		return "unroutable"
	}
}

const (
	ReasonNoProfile      = "upload résumé first"
	ReasonNoCoachContext = "upload résumé first or pick a posting from the results"
)

type Message struct {
	Text        string
	HasDocument bool
}

// Params carries what the rules found in the message.
type Params struct {
	PostingID string
	Location  string
	Contract  string
}

type Decision struct {
	Kind       Kind
	Capability Capability
	Params     Params
	Reason     string
}

func (d Decision) String() string {
	switch d.Kind {
	case Dispatch:
		return fmt.Sprintf("dispatch %s", d.Capability)
	case Clarify:
		return fmt.Sprintf("clarify (%s)", d.Reason)
	default:
		return "unroutable"
	}
}

// Classifier picks a capability for messages no rule recognizes.
type Classifier interface {
	Classify(ctx context.Context, msg Message, snap session.Snapshot) (Capability, error)
}

type Router struct {
	classifier Classifier
	logger     *zap.Logger
}

// New returns a router. A nil classifier makes unmatched messages unroutable.
func New(classifier Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{classifier: classifier, logger: logger}
}

// Route never fails: classifier errors turn into an Unroutable decision.
func (r *Router) Route(ctx context.Context, msg Message, snap session.Snapshot) Decision {
	folded := textnorm.Fold(msg.Text)

	params := Params{
		Location: postings.ExtractLocation(msg.Text),
		Contract: postings.ContractCode(msg.Text),
	}
	ref := resolvePosting(folded, snap)
	capability, matched := matchRules(msg, folded)
	if ref.found {
		// "my first job" or "job 75001" in a search is not a pointer at a listed posting.
		if ref.id == "" && (!matched || usesPosting(capability)) {
			return Decision{Kind: Clarify, Reason: ref.problem}
		}
		params.PostingID = ref.id
	}

	if !matched && ref.found && snap.Phase == session.InCoaching {
		capability, matched = InterviewPrep, true
	}
	if !matched {
		if r.classifier == nil {
			return Decision{Kind: Unroutable}
		}
		c, err := r.classifier.Classify(ctx, msg, snap)
		if err != nil {
			r.logger.Info("intent classification failed", zap.Error(err))
			return Decision{Kind: Unroutable}
		}
		capability = c
	}

	decision := checkPreconditions(Decision{Kind: Dispatch, Capability: capability, Params: params}, msg, snap)
	r.logger.Debug("routed message",
		zap.String("decision", decision.String()),
		zap.Bool("rule", matched),
		zap.String("posting_id", decision.Params.PostingID),
	)
	return decision
}

func matchRules(msg Message, folded string) (Capability, bool) {
	if msg.HasDocument {
		return AnalyzeResume, true
	}
	if folded == "" {
		return "", false
	}
	for _, rule := range keywordRules {
		if textnorm.ContainsAny(folded, rule.keywords...) {
			return rule.capability, true
		}
	}
	return "", false
}

// usesPosting reports whether a capability acts on a listed posting.
func usesPosting(c Capability) bool {
	return c == InterviewPrep
}

func checkPreconditions(d Decision, msg Message, snap session.Snapshot) Decision {
	switch d.Capability {
	case JobSearch, Recommend:
		if !snap.HasProfile() {
			return Decision{Kind: Clarify, Capability: d.Capability, Reason: ReasonNoProfile}
		}
	case AnalyzeResume:
		if !msg.HasDocument && !snap.HasProfile() {
			return Decision{Kind: Clarify, Capability: d.Capability, Reason: ReasonNoProfile}
		}
	case InterviewPrep:
		if d.Params.PostingID == "" && snap.Active.Capability == string(InterviewPrep) {
			d.Params.PostingID = snap.Active.PostingID
		}
		if !snap.HasProfile() && d.Params.PostingID == "" {
			return Decision{Kind: Clarify, Capability: d.Capability, Reason: ReasonNoCoachContext}
		}
	}
	return d
}

// describeState is the session summary given to the classifier.
func describeState(snap session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase: %s\n", snap.Phase)
	fmt.Fprintf(&b, "profile uploaded: %t\n", snap.HasProfile())
	fmt.Fprintf(&b, "postings listed: %d\n", snap.LastResults.Len())
	if snap.Active.Capability != "" {
		fmt.Fprintf(&b, "last capability: %s\n", snap.Active.Capability)
	}
	return b.String()
}
