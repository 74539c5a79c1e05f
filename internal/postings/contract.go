package postings

import (
	"strings"

	"github.com/spigell/career-assistant/internal/textnorm"
)

// France Travail contract type codes.
const (
	ContractCDI        = "CDI"
	ContractCDD        = "CDD"
	ContractInterim    = "MIS"
	ContractSeasonal   = "SAI"
	ContractFreelance  = "LIB"
	ContractInternship = "STG"
	ContractWorkStudy  = "ALT"
)

// contractKeywords is checked in order, the first match wins.
var contractKeywords = []struct {
	keyword string
	code    string
}{
	{"alternance", ContractWorkStudy},
	{"apprentissage", ContractWorkStudy},
	{"apprenticeship", ContractWorkStudy},
	{"work-study", ContractWorkStudy},
	{"stage", ContractInternship},
	{"internship", ContractInternship},
	{"intern", ContractInternship},
	{"interim", ContractInterim},
	{"temporary", ContractInterim},
	{"freelance", ContractFreelance},
	{"independant", ContractFreelance},
	{"contractor", ContractFreelance},
	{"saisonnier", ContractSeasonal},
	{"seasonal", ContractSeasonal},
	{"cdd", ContractCDD},
	{"fixed-term", ContractCDD},
	{"fixed term", ContractCDD},
	{"cdi", ContractCDI},
	{"permanent", ContractCDI},
}

// ContractCode maps a free-form contract label ("Alternance", "CDI", "internship")
// to the France Travail code. It returns "" when nothing matches.
func ContractCode(label string) string {
	folded := textnorm.Fold(label)
	if folded == "" {
		return ""
	}

	for _, code := range []string{ContractCDI, ContractCDD, ContractInterim, ContractSeasonal, ContractFreelance, ContractInternship, ContractWorkStudy} {
		if folded == strings.ToLower(code) {
			return code
		}
	}

	for _, entry := range contractKeywords {
		if textnorm.ContainsTerm(folded, entry.keyword) {
			return entry.code
		}
	}

	return ""
}
