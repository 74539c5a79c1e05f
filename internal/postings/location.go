package postings

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spigell/career-assistant/internal/textnorm"
)

var (
	postalCodeRe = regexp.MustCompile(`\b(\d{5})\b`)
	departmentRe = regexp.MustCompile(`(?i)\bd[ée]partement\s+(\d{2,3}|2a|2b)\b`)
	bareDeptRe   = regexp.MustCompile(`^(\d{2,3}|2[ab])$`)
)

var cityDepartments = []struct {
	city string
	code string
}{
	{"bordeaux", "33"},
	{"grenoble", "38"},
	{"lille", "59"},
	{"lyon", "69"},
	{"marseille", "13"},
	{"montpellier", "34"},
	{"nantes", "44"},
	{"nice", "06"},
	{"paris", "75"},
	{"rennes", "35"},
	{"strasbourg", "67"},
	{"toulouse", "31"},
}

// Department resolves a free-form location ("Lyon", "75011", "département 33")
// to a French department code. It returns "" when the location is unknown.
func Department(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}

	if m := departmentRe.FindStringSubmatch(location); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := postalCodeRe.FindStringSubmatch(location); m != nil {
		return departmentFromPostalCode(m[1])
	}
	folded := textnorm.Fold(location)
	if bareDeptRe.MatchString(folded) {
		return strings.ToUpper(folded)
	}
	for _, entry := range cityDepartments {
		if textnorm.ContainsTerm(folded, entry.city) {
			return entry.code
		}
	}
	return ""
}

func departmentFromPostalCode(code string) string {
	switch {
	case strings.HasPrefix(code, "97"), strings.HasPrefix(code, "98"):
		return code[:3]
	case strings.HasPrefix(code, "20"):
		// Corsica: 200xx and 201xx are Corse-du-Sud, the rest Haute-Corse.
		if code < "20200" {
			return "2A"
		}
		return "2B"
	default:
		return code[:2]
	}
}

// ExtractLocation finds a location mentioned in a message: a postal code, a
// "département NN" mention or a known city. It returns "" when there is none.
func ExtractLocation(message string) string {
	if m := postalCodeRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if m := departmentRe.FindStringSubmatch(message); m != nil {
		return "département " + strings.ToUpper(m[1])
	}
	folded := textnorm.Fold(message)
	for _, entry := range cityDepartments {
		if textnorm.ContainsTerm(folded, entry.city) {
			return cases.Title(language.French).String(entry.city)
		}
	}
	return ""
}
