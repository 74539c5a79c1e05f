// Package profile builds a structured candidate profile out of résumé text.
package profile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/career-assistant/internal/textnorm"
)

// Profile is the structured view of one résumé.
type Profile struct {
	FullName        string       `json:"full_name,omitempty"`
	Email           string       `json:"email,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Location        string       `json:"location,omitempty"`
	DesiredJob      string       `json:"desired_job,omitempty"`
	DesiredContract string       `json:"desired_contract,omitempty"`
	Summary         string       `json:"summary,omitempty"`
	Skills          []string     `json:"skills"`
	Languages       []string     `json:"languages,omitempty"`
	Experiences     []Experience `json:"experiences"`
	Education       []Education  `json:"education"`
	RawTextDigest   string       `json:"raw_text_digest"`
}

type Experience struct {
	Title        string `json:"title"`
	Organization string `json:"organization,omitempty"`
	Period       Period `json:"period"`
	Location     string `json:"location,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Education struct {
	Institution  string `json:"institution,omitempty"`
	Credential   string `json:"credential,omitempty"`
	FieldOfStudy string `json:"field_of_study,omitempty"`
	Period       Period `json:"period"`
}

// Period is a start/end range. A nil End means the period is ongoing.
type Period struct {
	Start *YearMonth `json:"start,omitempty"`
	End   *YearMonth `json:"end,omitempty"`
}

type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Skills = append([]string(nil), p.Skills...)
	c.Languages = append([]string(nil), p.Languages...)
	c.Experiences = append([]Experience(nil), p.Experiences...)
	for i := range c.Experiences {
		c.Experiences[i].Period = c.Experiences[i].Period.clone()
	}
	c.Education = append([]Education(nil), p.Education...)
	for i := range c.Education {
		c.Education[i].Period = c.Education[i].Period.clone()
	}
	return &c
}

func (p Period) clone() Period {
	return Period{Start: p.Start.clone(), End: p.End.clone()}
}

func (ym *YearMonth) clone() *YearMonth {
	if ym == nil {
		return nil
	}
	c := *ym
	return &c
}

// MostRecent returns the latest experience, or nil when there is none.
func (p *Profile) MostRecent() *Experience {
	if p == nil || len(p.Experiences) == 0 {
		return nil
	}
	return &p.Experiences[0]
}

// HasSkill compares using the same normalization as extraction.
func (p *Profile) HasSkill(skill string) bool {
	if p == nil {
		return false
	}
	want := NormalizeSkill(skill)
	for _, s := range p.Skills {
		if s == want {
			return true
		}
	}
	return false
}

// Empty reports whether nothing useful was extracted.
func (p *Profile) Empty() bool {
	return p == nil || (len(p.Skills) == 0 && len(p.Experiences) == 0 && len(p.Education) == 0 &&
		p.FullName == "" && p.DesiredJob == "")
}

// SearchKeywords picks the terms used for a job search when the user did not give any.
func (p *Profile) SearchKeywords() string {
	if p == nil {
		return ""
	}
	if p.DesiredJob != "" {
		return p.DesiredJob
	}
	if recent := p.MostRecent(); recent != nil {
		return recent.Title
	}
	top := p.Skills
	if len(top) > 3 {
		top = top[:3]
	}
	return strings.Join(top, " ")
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	if ym.Month == 0 {
		return strconv.Itoa(ym.Year)
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (p Period) Current() bool {
	return p.Start != nil && p.End == nil
}

func (p Period) String() string {
	switch {
	case p.Start == nil && p.End == nil:
		return ""
	case p.Start == nil:
		return "until " + p.End.String()
	case p.End == nil:
		return p.Start.String() + " - present"
	default:
		return p.Start.String() + " - " + p.End.String()
	}
}

var ongoingWords = []string{"present", "current", "now", "today", "ongoing", "aujourd'hui", "actuel", "en cours", "maintenant"}

// ParseYearMonth accepts "2021-03", "2021/03", "03/2021", "2021-03-15" and "2021".
// ok is false for empty or unparseable input; ongoing is true for words like "present".
func ParseYearMonth(value string) (ym *YearMonth, ongoing bool, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false, false
	}

	folded := textnorm.Fold(value)
	for _, word := range ongoingWords {
		if folded == textnorm.Fold(word) {
			return nil, true, true
		}
	}

	for _, layout := range []string{"2006-01", "2006/01", "01/2006", "01-2006", "2006-01-02", "2006.01", "01.2006", "January 2006", "Jan 2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &YearMonth{Year: t.Year(), Month: t.Month()}, false, true
		}
	}

	if year, err := strconv.Atoi(value); err == nil && year >= 1900 && year <= 2200 {
		return &YearMonth{Year: year}, false, true
	}

	return nil, false, false
}

// sortExperiences orders experiences by start, newest first. Entries without a
// start go last; among equal starts the ongoing one comes first.
func sortExperiences(experiences []Experience) {
	sort.SliceStable(experiences, func(i, j int) bool {
		a, b := experiences[i].Period, experiences[j].Period
		switch {
		case a.Start == nil && b.Start == nil:
			return false
		case a.Start == nil:
			return false
		case b.Start == nil:
			return true
		case *a.Start != *b.Start:
			return b.Start.Before(*a.Start)
		case a.End == nil && b.End != nil:
			return true
		case a.End != nil && b.End == nil:
			return false
		case a.End != nil && b.End != nil:
			return b.End.Before(*a.End)
		default:
			return false
		}
	})
}
