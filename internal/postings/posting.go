package postings

import (
	"slices"
	"time"
)

// Posting is a job offer as returned by the postings API. It is never modified after fetching.
type Posting struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Employer       string    `json:"employer,omitempty"`
	Location       Location  `json:"location"`
	Description    string    `json:"description,omitempty"`
	RequiredSkills []string  `json:"required_skills,omitempty"`
	PostedAt       time.Time `json:"posted_at"`
	URL            string    `json:"url,omitempty"`
	ContractType   string    `json:"contract_type,omitempty"`
	Salary         string    `json:"salary,omitempty"`
	Experience     string    `json:"experience,omitempty"`
}

type Location struct {
	Label      string `json:"label,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Query describes one search.
type Query struct {
	Keywords string  `json:"keywords"`
	Location string  `json:"location,omitempty"`
	Filters  Filters `json:"filters"`
}

type Filters struct {
	// Department overrides the department resolved from Location.
	Department string `json:"department,omitempty"`
	// Contract is a France Travail contract code (CDI, CDD, MIS...).
	Contract string `json:"contract,omitempty"`
	// Commune is an INSEE commune code; Radius only applies together with it.
	Commune string `json:"commune,omitempty"`
	Radius  int    `json:"radius,omitempty"`
	// Limit caps the number of postings returned.
	Limit int `json:"limit,omitempty"`
	// ExcludeEmployers drops postings from these employers (case-insensitive).
	ExcludeEmployers []string `json:"exclude_employers,omitempty"`
}

// Clone returns a copy that shares no memory with p.
func (p *Posting) Clone() *Posting {
	if p == nil {
		return nil
	}
	c := *p
	c.RequiredSkills = slices.Clone(p.RequiredSkills)
	return &c
}

func (p *Posting) String() string {
	if p == nil {
		return ""
	}
	s := p.Title
	if p.Employer != "" {
		s += " / " + p.Employer
	}
	if p.Location.Label != "" {
		s += " / " + p.Location.Label
	}
	return s
}
