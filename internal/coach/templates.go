package coach

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/textnorm"
)

var sentenceSplitRe = regexp.MustCompile(`[.!?;\n]+`)

// requirementMarkers flag description sentences that state a requirement.
var requirementMarkers = []string{
	"requis", "requise", "exige", "exigee", "maitrise", "maitriser", "connaissance", "connaissances",
	"experience", "competence", "competences", "diplome", "required", "must", "proficiency", "knowledge of",
}

// Requirements returns the posting's required skills, or the requirement
// sentences of its description when it lists none. Without any marked sentence
// the first sentence of the description stands in.
func Requirements(posting *postings.Posting) []string {
	if posting == nil {
		return nil
	}
	var out []string
	for _, skill := range posting.RequiredSkills {
		if s := strings.TrimSpace(skill); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}

	var first string
	for _, sentence := range sentenceSplitRe.Split(posting.Description, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if first == "" {
			first = sentence
		}
		if textnorm.ContainsAny(textnorm.Fold(sentence), requirementMarkers...) {
			out = append(out, sentence)
		}
	}
	if len(out) == 0 && first != "" {
		out = append(out, first)
	}
	return out
}

func fromTemplates(p *profile.Profile, posting *postings.Posting) *Prep {
	prep := &Prep{}
	if posting != nil {
		prep.Questions = postingQuestions(p, posting)
	} else {
		prep.Questions = profileQuestions(p)
	}
	prep.Questions = append(prep.Questions, Question{
		Category: CategoryBehavioral,
		Text:     "Tell me about a time you disagreed with a teammate. How did you resolve it?",
	})
	return prep
}

func postingQuestions(p *profile.Profile, posting *postings.Posting) []Question {
	target := posting.Title
	if posting.Employer != "" {
		target += " at " + posting.Employer
	}
	questions := []Question{{
		Category: CategoryMotivation,
		Text:     fmt.Sprintf("Why are you interested in the %s position?", target),
	}}

	for _, req := range firstN(Requirements(posting), 3) {
		questions = append(questions, requirementQuestion(req))
	}

	if p != nil {
		if missing := missingSkills(p, posting); len(missing) > 0 {
			questions = append(questions, Question{
				Category: CategoryTechnical,
				Text:     fmt.Sprintf("The role mentions %s, which is not on your résumé. How would you get up to speed?", missing[0]),
			})
		}
		if recent := p.MostRecent(); recent != nil {
			questions = append(questions, Question{
				Category: CategoryExperience,
				Text:     fmt.Sprintf("How does your experience as %s prepare you for this role?", recent.Title),
			})
		}
	}

	return questions
}

func profileQuestions(p *profile.Profile) []Question {
	questions := []Question{profileQuestion(p)}
	if skills := topSkills(p, 2); len(skills) > 0 && p.MostRecent() != nil {
		questions = append(questions, Question{
			Category: CategoryTechnical,
			Text:     fmt.Sprintf("Which project best shows your skills in %s?", strings.Join(skills, " and ")),
		})
	}

	next := "What kind of position are you looking for next, and why?"
	if p.DesiredJob != "" {
		next = fmt.Sprintf("Why do you want to work as %s?", p.DesiredJob)
	}
	questions = append(questions, Question{Category: CategoryMotivation, Text: next})

	return questions
}

func missingSkills(p *profile.Profile, posting *postings.Posting) []string {
	var out []string
	for _, skill := range profile.NormalizeSkills(posting.RequiredSkills) {
		if !p.HasSkill(skill) {
			out = append(out, skill)
		}
	}
	return out
}
