package viewmodel

import (
	"encoding/json"
	"time"

	"leadboard/api/internal/store"
)

type Prospect struct {
	ID          string           `json:"id"`
	CompanyName string           `json:"company_name"`
	LogoURL     *string          `json:"logo_url"`
	Metadata    map[string]any   `json:"metadata"`
	Leads       []map[string]any `json:"leads"`
	Outreach    map[string]any   `json:"outreach"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func FromProspect(item store.Prospect) Prospect {
	out := Prospect{
		ID:          item.ID,
		CompanyName: item.CompanyName,
		LogoURL:     item.LogoURL,
		Metadata:    item.Metadata,
		Leads:       item.Leads,
		Outreach:    item.Outreach,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if out.Leads == nil {
		out.Leads = []map[string]any{}
	}
	if out.Outreach == nil {
		out.Outreach = map[string]any{}
	}
	return out
}

func FromProspects(items []store.Prospect) []Prospect {
	out := make([]Prospect, 0, len(items))
	for _, item := range items {
		out = append(out, FromProspect(item))
	}
	return out
}

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HealthScore *float64  `json:"health_score"`
	Logo        *string   `json:"logo"`
	City        *string   `json:"city"`
	Sector      *string   `json:"sector"`
	CreatedAt   time.Time `json:"created_at"`
}

func FromCustomers(items []store.Customer) []Customer {
	out := make([]Customer, 0, len(items))
	for _, item := range items {
		out = append(out, Customer{
			ID:          item.ID,
			Name:        item.Name,
			HealthScore: item.HealthScore,
			Logo:        item.Logo,
			City:        item.City,
			Sector:      item.Sector,
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}

type Signal struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	ImageURL    *string   `json:"image_url"`
	Category    string    `json:"category"`
	SignalType  string    `json:"signal_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func FromNewsLeads(items []store.NewsLead) []Signal {
	out := make([]Signal, 0, len(items))
	for _, item := range items {
		out = append(out, Signal{
			ID:          item.ID,
			CompanyName: item.CompanyName,
			Headline:    item.Headline,
			Summary:     item.Summary,
			ImageURL:    item.ImageURL,
			Category:    item.Category,
			SignalType:  item.SignalType,
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}

type ProspectLead struct {
	ID           string          `json:"id"`
	ProspectID   string          `json:"prospect_id"`
	Name         string          `json:"name"`
	Title        *string         `json:"title"`
	ProfileURL   string          `json:"profile_url"`
	Snippet      *string         `json:"snippet"`
	Location     *string         `json:"location"`
	OutreachData json.RawMessage `json:"outreach_data"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func FromProspectLeads(items []store.ProspectLead) []ProspectLead {
	out := make([]ProspectLead, 0, len(items))
	for _, item := range items {
		lead := ProspectLead{
			ID:           item.ID,
			ProspectID:   item.ProspectID,
			Name:         item.Name,
			Title:        item.Title,
			ProfileURL:   item.ProfileURL,
			Snippet:      item.Snippet,
			Location:     item.Location,
			OutreachData: item.OutreachData,
			CreatedAt:    item.CreatedAt,
			UpdatedAt:    item.UpdatedAt,
		}
		if len(lead.OutreachData) == 0 {
			lead.OutreachData = json.RawMessage("null")
		}
		out = append(out, lead)
	}
	return out
}
