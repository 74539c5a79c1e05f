package profile

import (
	"sort"
	"strings"

	"github.com/spigell/career-assistant/internal/textnorm"
)

// skillAliases maps common spellings onto one canonical skill name.
var skillAliases = map[string]string{
	"golang":                    "go",
	"js":                        "javascript",
	"ecmascript":                "javascript",
	"ts":                        "typescript",
	"postgres":                  "postgresql",
	"psql":                      "postgresql",
	"k8s":                       "kubernetes",
	"reactjs":                   "react",
	"react.js":                  "react",
	"vuejs":                     "vue.js",
	"vue":                       "vue.js",
	"nodejs":                    "node.js",
	"node":                      "node.js",
	"ml":                        "machine learning",
	"apprentissage automatique": "machine learning",
	"gcp":                       "google cloud",
	"amazon web services":       "aws",
	"ms excel":                  "excel",
	"microsoft excel":           "excel",
	"c sharp":                   "c#",
	"python3":                   "python",
	"anglais":                   "english",
}

var aliasesByCanonical = func() map[string][]string {
	out := make(map[string][]string)
	for alias, canonical := range skillAliases {
		out[canonical] = append(out[canonical], alias)
	}
	for _, aliases := range out {
		sort.Strings(aliases)
	}
	return out
}()

// NormalizeSkill folds case and accents, collapses whitespace, trims trailing
// punctuation and resolves known aliases. It returns "" for blank input.
func NormalizeSkill(skill string) string {
	s := textnorm.Fold(skill)
	s = strings.TrimRight(s, ".,;:!?")
	s = strings.TrimLeft(s, "-*•,;: ")
	s = strings.TrimSpace(s)
	if canonical, ok := skillAliases[s]; ok {
		return canonical
	}
	return s
}

// NormalizeSkills normalizes, deduplicates and sorts skills.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		n := NormalizeSkill(skill)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MentionedSkills returns the normalized skills that appear in text, including
// through one of their aliases.
func MentionedSkills(text string, skills []string) []string {
	folded := textnorm.Fold(text)
	var out []string
	for _, skill := range NormalizeSkills(skills) {
		if textnorm.ContainsTerm(folded, skill) || textnorm.ContainsAny(folded, aliasesByCanonical[skill]...) {
			out = append(out, skill)
		}
	}
	return out
}
