package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/coach"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textextract"
	"github.com/spigell/career-assistant/internal/utils"
)

const (
	listLimit        = 5
	descriptionLimit = 200
	skillsShown      = 15

	unroutableReply = "Sorry, I did not get that. I can analyze your résumé, search job postings, " +
		"recommend skills to learn or help you prepare for an interview."
	supersededReply = "This request was replaced by your newer message."
	cancelledReply  = "The request was cancelled."
	apologyReply    = "Sorry, something went wrong on my side. Nothing was changed, please try again."
)

func clarification(reason string) string {
	switch reason {
	case router.ReasonNoProfile:
		return "Please upload your résumé first so I can build your profile."
	case router.ReasonNoCoachContext:
		return "Please upload your résumé first or pick a posting from the search results, for example \"interview for #1\"."
	default:
		return fmt.Sprintf("I could not tell which posting you mean: %s.", reason)
	}
}

func helpReply(snap session.Snapshot) string {
	switch {
	case !snap.HasProfile():
		return "Hello! Upload your résumé (PDF, DOCX or text) and I will extract your profile, find matching job postings and help you prepare for interviews."
	case snap.LastResults.Len() == 0:
		return "Your profile is ready. Ask me to search for jobs, optionally with a city or a contract type, for example \"find CDI jobs in Lyon\"."
	default:
		return "You can ask for skill recommendations or say \"prepare me for an interview for #1\"."
	}
}

func profileReply(p *profile.Profile, fresh bool) string {
	var b strings.Builder
	if fresh {
		b.WriteString("I read your résumé.")
	} else {
		b.WriteString("Here is your profile.")
	}
	if p.FullName != "" {
		fmt.Fprintf(&b, " Name: %s.", p.FullName)
	}
	b.WriteString("\n")

	if p.DesiredJob != "" {
		fmt.Fprintf(&b, "Looking for: %s\n", p.DesiredJob)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", p.Location)
	}
	if len(p.Skills) > 0 {
		skills := strings.Join(firstN(p.Skills, skillsShown), ", ")
		if extra := len(p.Skills) - skillsShown; extra > 0 {
			skills += fmt.Sprintf(" and %d more", extra)
		}
		fmt.Fprintf(&b, "Skills: %s\n", skills)
	}
	if len(p.Languages) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(p.Languages, ", "))
	}
	if recent := p.MostRecent(); recent != nil {
		line := recent.Title
		if recent.Organization != "" {
			line += " at " + recent.Organization
		}
		if period := recent.Period.String(); period != "" {
			line += " (" + period + ")"
		}
		fmt.Fprintf(&b, "Experience: %d positions, most recent %s\n", len(p.Experiences), line)
	}
	if len(p.Education) > 0 {
		fmt.Fprintf(&b, "Education: %d entries\n", len(p.Education))
	}

	if fresh {
		b.WriteString("\nAsk me to search for jobs when you are ready.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultsReply(rs *matching.ResultSet) string {
	if rs.Len() == 0 {
		where := ""
		if rs != nil && rs.Query.Location != "" {
			where = " around " + rs.Query.Location
		}
		return fmt.Sprintf("I did not find postings matching your profile%s. Try another location or a broader job title.", where)
	}

	var b strings.Builder
	shown := min(rs.Len(), listLimit)
	fmt.Fprintf(&b, "Here are the %d best matches out of %d postings found:\n", shown, rs.Found)
	for i, r := range rs.Results[:shown] {
		p := r.Posting
		fmt.Fprintf(&b, "\n%d. %s (match %d%%)\n", i+1, p.String(), percent(r.Score))
		if p.ContractType != "" || p.Salary != "" {
			fmt.Fprintf(&b, "   %s\n", strings.TrimSpace(strings.Join(nonEmpty(p.ContractType, p.Salary), " · ")))
		}
		if desc := utils.TruncateAtWord(p.Description, descriptionLimit); desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "   %s\n", p.URL)
		}
	}
	b.WriteString("\nSay \"interview for #1\" to prepare for one of them or ask for skill recommendations.")
	return b.String()
}

func recommendationsReply(rec *Recommendation, rs *matching.ResultSet) string {
	var b strings.Builder
	switch {
	case len(rec.Suggestions) > 0:
		fmt.Fprintf(&b, "Skills worth adding, based on %d listed postings:\n", rs.Len())
		for _, s := range rec.Suggestions {
			fmt.Fprintf(&b, "- %s: %s\n", s.Skill, s.Rationale)
		}
	case rs.Len() > 0:
		b.WriteString("Your profile already covers the skills the listed postings ask for.\n")
	case rec.Advice == nil:
		return "There are no postings to compare your profile with yet. Try a job search first."
	}

	if adv := rec.Advice; adv != nil {
		if len(adv.HighlightedSkills) > 0 {
			fmt.Fprintf(&b, "\nSkills to put forward: %s\n", strings.Join(adv.HighlightedSkills, ", "))
		}
		if len(adv.Improvements) > 0 {
			b.WriteString("\nRésumé improvements:\n")
			for _, item := range adv.Improvements {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
		if adv.CareerAdvice != "" {
			fmt.Fprintf(&b, "\nCareer advice: %s\n", adv.CareerAdvice)
		}
	}
	return strings.TrimSpace(b.String())
}

func prepReply(prep *coach.Prep, posting *postings.Posting) string {
	var b strings.Builder
	if posting != nil {
		fmt.Fprintf(&b, "Interview preparation for %s\n", posting.String())
	} else {
		b.WriteString("Interview preparation based on your profile\n")
	}
	if prep.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", prep.Focus)
	}
	for i, q := range prep.Questions {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, q.Category, q.Text)
		for _, point := range q.TalkingPoints {
			fmt.Fprintf(&b, "   - %s\n", point)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// failure turns an error into a reply and the class reported in turn events.
func (s *Service) failure(log *zap.Logger, capability router.Capability, err error) (string, string) {
	var (
		mutationErr   *session.InvalidMutationError
		documentErr   *textextract.ExtractionError
		extractionErr *profile.ExtractionFailed
		apiErr        *postings.APIError
		modelErr      *ai.ModelError
		configErr     *notConfiguredError
	)

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("turn cancelled", zap.String("capability", string(capability)))
		return cancelledReply, "cancelled"

	case errors.As(err, &mutationErr):
		log.Error("invalid session mutation", zap.Error(err), zap.String("capability", string(capability)))
		return apologyReply, "invalid_mutation"

	case errors.As(err, &documentErr):
		log.Info("document not readable", zap.Error(err))
		return fmt.Sprintf("I could not read that document (%s). Please upload a PDF, DOCX or plain text file.", documentErr.Reason), "extraction_failed"

	case errors.As(err, &extractionErr):
		log.Warn("profile extraction failed", zap.Error(err))
		return "I could not extract a profile from your résumé. Please try again or upload another file.", "extraction_failed"

	case errors.Is(err, coach.ErrInsufficientContext):
		return clarification(router.ReasonNoCoachContext), "insufficient_context"

	case errors.As(err, &apiErr):
		log.Warn("postings api failed", zap.Error(err))
		return apiReply(apiErr.Kind), "api_" + apiErr.Kind.String()

	case errors.As(err, &modelErr):
		log.Warn("language model failed", zap.Error(err))
		return modelReply(modelErr.Kind), "model_" + modelErr.Kind.String()

	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("turn timed out", zap.Error(err))
		return modelReply(ai.KindTimeout), "timeout"

	case errors.As(err, &configErr):
		log.Warn("capability not configured", zap.Error(err))
		return fmt.Sprintf("Sorry, %s is not available in this setup.", capabilityName(configErr.capability)), "not_configured"

	default:
		log.Error("turn failed", zap.Error(err), zap.String("capability", string(capability)))
		return apologyReply, "internal"
	}
}

func apiReply(kind postings.ErrorKind) string {
	switch kind {
	case postings.KindRateLimited:
		return "The job postings service is busy right now, please try again in a minute."
	case postings.KindAuthFailed:
		return "Job search is not available right now: the postings service rejected our credentials."
	case postings.KindMalformed:
		return "The job postings service sent an answer I could not read, please try again later."
	default:
		return "Job search is temporarily unavailable, try again shortly."
	}
}

func modelReply(kind ai.Kind) string {
	switch kind {
	case ai.KindTimeout:
		return "That took too long to answer, please try again."
	case ai.KindRateLimited:
		return "I am receiving too many requests right now, please try again in a minute."
	case ai.KindInvalidResponse:
		return "I got an unusable answer from the language model, please try again."
	default:
		return "The language model is unavailable right now, try again shortly."
	}
}

func capabilityName(c router.Capability) string {
	switch c {
	case router.AnalyzeResume:
		return "résumé analysis"
	case router.JobSearch:
		return "job search"
	default:
		return strings.ReplaceAll(string(c), "_", " ")
	}
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
