package viewmodel

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"leadboard/api/internal/store"
)

// MaybeOne decodes a joined sidecar that may arrive as a bare object, an array
// holding at most one object, or null. Anything else decodes to nil, as does
// an empty array.
func MaybeOne[T any](raw json.RawMessage) *T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil || len(items) == 0 {
			return nil
		}
		return MaybeOne[T](items[0])
	}

	if trimmed[0] != '{' {
		return nil
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil
	}
	return &out
}

type EnrichedSignal struct {
	ID              string    `json:"id"`
	CompanyName     string    `json:"company_name"`
	Headline        string    `json:"headline"`
	Summary         string    `json:"summary"`
	ImageURL        *string   `json:"image_url"`
	Category        string    `json:"category"`
	SignalType      string    `json:"signal_type"`
	CreatedAt       time.Time `json:"created_at"`
	LogoURL         *string   `json:"logo_url"`
	LeadStatus      string    `json:"lead_status"`
	AddedToResearch bool      `json:"added_to_research"`
}

// EnrichSignal flattens a news lead and its lead_status sidecar. The sidecar
// wins over the legacy columns on the news lead whenever it is present.
func EnrichSignal(row store.NewsLeadRow) EnrichedSignal {
	out := EnrichedSignal{
		ID:          row.ID,
		CompanyName: row.CompanyName,
		Headline:    row.Headline,
		Summary:     row.Summary,
		ImageURL:    row.ImageURL,
		Category:    row.Category,
		SignalType:  row.SignalType,
		CreatedAt:   row.CreatedAt,
		LeadStatus:  store.StageDiscovery,
	}

	status := MaybeOne[store.LeadStatus](row.StatusJSON)

	switch {
	case status != nil && nonBlank(status.LogoURL):
		out.LogoURL = status.LogoURL
	case nonBlank(row.LogoURL):
		out.LogoURL = row.LogoURL
	}

	if status != nil && strings.TrimSpace(status.Status) != "" {
		out.LeadStatus = status.Status
	}

	switch {
	case status != nil && (status.Status == store.StageResearch || status.Status == store.StageProspect):
		out.AddedToResearch = true
	case row.AddedToResearch != nil:
		out.AddedToResearch = *row.AddedToResearch
	}
	return out
}

func EnrichSignals(rows []store.NewsLeadRow) []EnrichedSignal {
	out := make([]EnrichedSignal, 0, len(rows))
	for _, row := range rows {
		out = append(out, EnrichSignal(row))
	}
	return out
}

// ResearchedItem is one row of the researched listing.
type ResearchedItem struct {
	ID             string    `json:"id"`
	DeepResearchID *string   `json:"deep_research_id"`
	CompanyName    string    `json:"company_name"`
	LeadScore      *float64  `json:"lead_score"`
	Location       *string   `json:"location"`
	LogoURL        *string   `json:"logo_url"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FlattenResearched drops rows whose research record is missing, since the
// listing cannot show a row without a company name.
func FlattenResearched(rows []store.ResearchedRow) []ResearchedItem {
	out := make([]ResearchedItem, 0, len(rows))
	for _, row := range rows {
		research := MaybeOne[store.DeepResearch](row.ResearchJSON)
		if research == nil || strings.TrimSpace(research.CompanyName) == "" {
			continue
		}
		out = append(out, ResearchedItem{
			ID:             row.ID,
			DeepResearchID: row.DeepResearchID,
			CompanyName:    research.CompanyName,
			LeadScore:      research.LeadScore,
			Location:       research.Location,
			LogoURL:        row.LogoURL,
			Status:         row.Status,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return out
}

func nonBlank(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}
