package matching

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spigell/career-assistant/internal/profile"
)

// Suggestion is a skill gap found in the listed postings.
type Suggestion struct {
	Skill     string `json:"skill"`
	Count     int    `json:"count"`
	Rationale string `json:"rationale"`
}

// Recommend lists the skills required by the results that the profile lacks,
// most requested first.
func Recommend(p *profile.Profile, rs *ResultSet) []Suggestion {
	suggestions := []Suggestion{}
	if rs.Len() == 0 {
		return suggestions
	}

	owned := make(map[string]struct{})
	if p != nil {
		for _, s := range profile.NormalizeSkills(p.Skills) {
			owned[s] = struct{}{}
		}
	}

	counts := make(map[string]int)
	for _, r := range rs.Results {
		if r.Posting == nil {
			continue
		}
		for _, skill := range profile.NormalizeSkills(r.Posting.RequiredSkills) {
			if _, ok := owned[skill]; ok {
				continue
			}
			counts[skill]++
		}
	}

	for skill, count := range counts {
		suggestions = append(suggestions, Suggestion{
			Skill:     skill,
			Count:     count,
			Rationale: rationale(skill, count),
		})
	}
	slices.SortFunc(suggestions, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Skill, b.Skill)
	})

	return suggestions
}

func rationale(skill string, count int) string {
	if count == 1 {
		return fmt.Sprintf("1 posting requires %s, not present in your profile", skill)
	}
	return fmt.Sprintf("%d postings require %s, not present in your profile", count, skill)
}
