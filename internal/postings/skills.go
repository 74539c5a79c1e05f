package postings

import (
	"strings"

	"github.com/spigell/career-assistant/internal/textnorm"
)

// skillKeywords are looked up in titles and descriptions. Short ambiguous
// names (go, c, r) are left out because they match ordinary words.
var skillKeywords = []string{
	"angular", "ansible", "api rest", "aws", "azure", "c#", "c++", "ci/cd",
	"django", "docker", "excel", "fastapi", "flask", "gcp", "git", "golang",
	"graphql", "hadoop", "java", "javascript", "jenkins", "kafka", "kotlin",
	"kubernetes", "linux", "machine learning", "matlab", "mongodb", "mysql",
	"node.js", "nodejs", "php", "postgresql", "power bi", "python", "pytorch",
	"react", "redis", "ruby", "rust", "sap", "scala", "scikit-learn", "spark",
	"spring", "sql", "swift", "tableau", "tensorflow", "terraform", "typescript",
	"vue.js", "vuejs",
}

// maxCompetenceWords bounds the competence labels kept as skills; longer
// labels are task descriptions rather than skill names.
const maxCompetenceWords = 4

// DetectSkills returns the vocabulary skills mentioned in text, in vocabulary order.
func DetectSkills(text string) []string {
	folded := textnorm.Fold(text)
	if folded == "" {
		return nil
	}

	var out []string
	for _, keyword := range skillKeywords {
		if textnorm.ContainsTerm(folded, keyword) {
			out = append(out, keyword)
		}
	}
	return out
}

func requiredSkills(competences []string, title, description string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(skill string) {
		key := textnorm.Fold(skill)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(skill))
	}

	for _, label := range competences {
		if len(strings.Fields(label)) <= maxCompetenceWords {
			add(label)
		}
	}
	for _, skill := range DetectSkills(title + "\n" + description) {
		add(skill)
	}
	return out
}
