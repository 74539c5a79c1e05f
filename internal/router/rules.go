package router

import (
	"regexp"
	"strconv"

	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textnorm"
)

// keywordRules are checked in order against the folded message; the first match wins.
var keywordRules = []struct {
	capability Capability
	keywords   []string
}{
	{InterviewPrep, []string{
		"interview", "interviews", "mock interview", "prepare me", "coach me",
		"entretien", "entretiens", "preparer", "prepare-moi", "simulation",
	}},
	{Recommend, []string{
		"recommend", "recommendation", "recommendations", "suggest", "suggestions", "improve", "skill gap", "advice",
		"what should i learn", "which skills", "what skills", "missing skills",
		"recommande", "recommander", "recommandation", "recommandations", "conseil", "conseils",
		"ameliorer", "progresser", "competences manquantes", "quelles competences",
	}},
	{JobSearch, []string{
		"search", "find", "look for", "looking for", "job offers", "openings", "vacancies", "postings",
		"cherche", "chercher", "recherche", "trouve", "trouver", "offres", "offre d'emploi", "emplois", "annonces",
	}},
	{AnalyzeResume, []string{
		"analyze", "analyse", "analyser", "my cv", "my resume", "my profile", "review my",
		"mon cv", "mon profil", "extract",
	}},
	{GeneralChat, []string{
		"hello", "hi", "hey", "thanks", "thank you", "bye", "help",
		"bonjour", "bonsoir", "salut", "coucou", "merci", "aide",
	}},
}

var (
	hashRefRe    = regexp.MustCompile(`#\s*(\d+)`)
	numberRefRe  = regexp.MustCompile(`\b(?:number|n°|numero|offer|offre|posting|annonce|job|result)\s*(\d+)\b`)
	ordinalRefRe = regexp.MustCompile(`\b(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th|premiere|premier|deuxieme|seconde|troisieme|quatrieme|cinquieme)\s+(?:one|offer|posting|job|result|offre|annonce|poste)\b`)
	frOrdinalRe  = regexp.MustCompile(`\b(?:la|le|l')\s*(premiere|premier|deuxieme|seconde|second|troisieme|quatrieme|cinquieme)\b`)
)

var ordinals = map[string]int{
	"first": 1, "1st": 1, "premier": 1, "premiere": 1,
	"second": 2, "2nd": 2, "deuxieme": 2, "seconde": 2,
	"third": 3, "3rd": 3, "troisieme": 3,
	"fourth": 4, "4th": 4, "quatrieme": 4,
	"fifth": 5, "5th": 5, "cinquieme": 5,
}

// deictic phrases point at the posting of the active context.
var deictic = []string{
	"that one", "this one", "that job", "this job", "that offer", "this offer", "that posting", "this posting",
	"celle-ci", "celle-la", "cette offre", "ce poste", "cette annonce",
}

type postingRef struct {
	found   bool
	id      string
	problem string
}

// resolvePosting finds a reference to a listed posting in the folded message.
func resolvePosting(folded string, snap session.Snapshot) postingRef {
	if n, ok := positionalRef(folded); ok {
		if p := snap.LastResults.Posting(n); p != nil {
			return postingRef{found: true, id: p.ID}
		}
		if snap.LastResults.Len() == 0 {
			return postingRef{found: true, problem: "there are no listed postings yet, search first"}
		}
		return postingRef{found: true, problem: "only " + strconv.Itoa(snap.LastResults.Len()) + " postings are listed"}
	}

	if snap.LastResults != nil {
		for _, r := range snap.LastResults.Results {
			if r.Posting != nil && textnorm.ContainsTerm(folded, textnorm.Fold(r.Posting.ID)) {
				return postingRef{found: true, id: r.Posting.ID}
			}
		}
	}

	if textnorm.ContainsAny(folded, deictic...) {
		if snap.Active.PostingID != "" {
			return postingRef{found: true, id: snap.Active.PostingID}
		}
		if snap.LastResults.Len() == 1 {
			return postingRef{found: true, id: snap.LastResults.Posting(1).ID}
		}
	}

	return postingRef{}
}

func positionalRef(folded string) (int, bool) {
	for _, re := range []*regexp.Regexp{hashRefRe, numberRefRe} {
		if m := re.FindStringSubmatch(folded); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	for _, re := range []*regexp.Regexp{ordinalRefRe, frOrdinalRe} {
		if m := re.FindStringSubmatch(folded); m != nil {
			return ordinals[m[1]], true
		}
	}
	return 0, false
}
