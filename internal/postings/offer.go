package postings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// offer mirrors the fields of a France Travail "resultats" item we use.
type offer struct {
	ID           string `json:"id"`
	Title        string `json:"intitule"`
	Description  string `json:"description"`
	CreatedAt    string `json:"dateCreation"`
	UpdatedAt    string `json:"dateActualisation"`
	ContractType string `json:"typeContrat"`
	Experience   string `json:"experienceLibelle"`
	Workplace    struct {
		Label      string `json:"libelle"`
		PostalCode string `json:"codePostal"`
	} `json:"lieuTravail"`
	Company struct {
		Name string `json:"nom"`
	} `json:"entreprise"`
	Salary struct {
		Label string `json:"libelle"`
	} `json:"salaire"`
	Competences []struct {
		Label string `json:"libelle"`
	} `json:"competences"`
	Origin struct {
		URL string `json:"urlOrigine"`
	} `json:"origineOffre"`
}

type searchResponse struct {
	Results []map[string]any `json:"resultats"`
}

func decodeOffers(data []byte) ([]*Posting, error) {
	var response searchResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var offers []offer
	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &offers,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(response.Results); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}

	postings := make([]*Posting, 0, len(offers))
	for _, o := range offers {
		if strings.TrimSpace(o.ID) == "" {
			continue
		}
		postings = append(postings, o.posting())
	}

	return postings, nil
}

func (o offer) posting() *Posting {
	competences := make([]string, 0, len(o.Competences))
	for _, c := range o.Competences {
		competences = append(competences, c.Label)
	}

	url := o.Origin.URL
	if url == "" {
		url = detailURL + o.ID
	}

	return &Posting{
		ID:       o.ID,
		Title:    strings.TrimSpace(o.Title),
		Employer: strings.TrimSpace(o.Company.Name),
		Location: Location{
			Label:      strings.TrimSpace(o.Workplace.Label),
			PostalCode: o.Workplace.PostalCode,
		},
		Description:    strings.TrimSpace(o.Description),
		RequiredSkills: requiredSkills(competences, o.Title, o.Description),
		PostedAt:       parseDate(o.CreatedAt, o.UpdatedAt),
		URL:            url,
		ContractType:   o.ContractType,
		Salary:         o.Salary.Label,
		Experience:     o.Experience,
	}
}

// parseDate returns the first value that parses, or the zero time.
func parseDate(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
