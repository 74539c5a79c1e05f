package matching

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
)

// Result is a scored posting.
type Result struct {
	Posting       *postings.Posting `json:"posting"`
	Score         float64           `json:"score"`
	SkillOverlap  float64           `json:"skill_overlap"`
	Recency       float64           `json:"recency"`
	MatchedSkills []string          `json:"matched_skills,omitempty"`
	MissingSkills []string          `json:"missing_skills,omitempty"`
}

// ResultSet is the outcome of one search. It is replaced wholesale by the next one.
type ResultSet struct {
	Query    postings.Query `json:"query"`
	Results  []Result       `json:"results"`
	Found    int            `json:"found"`
	RankedAt time.Time      `json:"ranked_at"`
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Results)
}

// Posting returns the posting at the 1-based position n.
func (rs *ResultSet) Posting(n int) *postings.Posting {
	if rs == nil || n < 1 || n > len(rs.Results) {
		return nil
	}
	return rs.Results[n-1].Posting
}

// Find returns the posting with the given id.
func (rs *ResultSet) Find(id string) *postings.Posting {
	if rs == nil {
		return nil
	}
	for _, r := range rs.Results {
		if r.Posting != nil && r.Posting.ID == id {
			return r.Posting
		}
	}
	return nil
}

func (rs *ResultSet) Clone() *ResultSet {
	if rs == nil {
		return nil
	}
	out := *rs
	out.Query.Filters.ExcludeEmployers = slices.Clone(rs.Query.Filters.ExcludeEmployers)
	out.Results = make([]Result, len(rs.Results))
	for i, r := range rs.Results {
		r.Posting = r.Posting.Clone()
		r.MatchedSkills = slices.Clone(r.MatchedSkills)
		r.MissingSkills = slices.Clone(r.MissingSkills)
		out.Results[i] = r
	}
	return &out
}

// Rank scores every posting against the profile, drops those under the overlap
// threshold and sorts the rest by score, then newer first, then by id.
// It depends only on its arguments.
func Rank(p *profile.Profile, items []*postings.Posting, w Weights, now time.Time) []Result {
	var profileSkills []string
	if p != nil {
		profileSkills = profile.NormalizeSkills(p.Skills)
	}
	owned := make(map[string]struct{}, len(profileSkills))
	for _, s := range profileSkills {
		owned[s] = struct{}{}
	}

	results := make([]Result, 0, len(items))
	for _, posting := range items {
		if posting == nil {
			continue
		}
		r := score(posting, profileSkills, owned, w, now)
		if r.SkillOverlap < w.MinOverlap {
			continue
		}
		results = append(results, r)
	}

	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.Posting.PostedAt.Compare(a.Posting.PostedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Posting.ID, b.Posting.ID)
	})

	return results
}

func score(posting *postings.Posting, profileSkills []string, owned map[string]struct{}, w Weights, now time.Time) Result {
	required := profile.NormalizeSkills(posting.RequiredSkills)
	r := Result{Posting: posting}

	if len(required) > 0 {
		for _, skill := range required {
			if _, ok := owned[skill]; ok {
				r.MatchedSkills = append(r.MatchedSkills, skill)
			} else {
				r.MissingSkills = append(r.MissingSkills, skill)
			}
		}
		r.SkillOverlap = float64(len(r.MatchedSkills)) / float64(len(required))
	} else if len(profileSkills) > 0 {
		r.MatchedSkills = profile.MentionedSkills(posting.Title+"\n"+posting.Description, profileSkills)
		r.SkillOverlap = float64(len(r.MatchedSkills)) / float64(len(profileSkills))
	}

	r.Recency = recency(posting.PostedAt, now, w.HalfLife)
	r.Score = clamp((w.Skill*r.SkillOverlap + w.Recency*r.Recency) / (w.Skill + w.Recency))

	return r
}

// recency halves every halfLife. Unknown dates score 0 and future dates 1.
func recency(postedAt, now time.Time, halfLife time.Duration) float64 {
	if postedAt.IsZero() || halfLife <= 0 {
		return 0
	}
	age := now.Sub(postedAt)
	if age <= 0 {
		return 1
	}
	return clamp(math.Pow(0.5, float64(age)/float64(halfLife)))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
