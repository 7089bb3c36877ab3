package store

import (
	"encoding/json"
	"time"
)

// Pipeline stages stored on lead_status.
const (
	StageDiscovery = "discovery"
	StageResearch  = "research"
	StageProspect  = "prospect"
)

// Research queue statuses.
const (
	ResearchQueued    = "queued"
	ResearchCompleted = "completed"
)

type NewsLead struct {
	ID          string
	CompanyName string
	Headline    string
	Summary     string
	ImageURL    *string
	Category    string
	SignalType  string
	// Legacy denormalized columns, superseded by lead_status when present.
	LogoURL         *string
	AddedToResearch *bool
	CreatedAt       time.Time
}

// NewsLeadRow is a news lead joined with its lead_status sidecar. Depending on
// the query path the sidecar arrives as a JSON object, a JSON array holding at
// most one object, or null.
type NewsLeadRow struct {
	NewsLead
	StatusJSON json.RawMessage
}

type LeadStatus struct {
	SignalID  string    `json:"signal_id"`
	LogoURL   *string   `json:"logo_url"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ResearchQueueEntry struct {
	ID             string
	NewsLeadID     *string
	CompanyName    string
	ResearchStatus string
	AddedAt        time.Time
}

type DeepResearch struct {
	ID          string         `json:"id"`
	CompanyName string         `json:"company_name"`
	LeadScore   *float64       `json:"lead_score"`
	Location    *string        `json:"location"`
	Industry    *string        `json:"industry"`
	Profile     map[string]any `json:"profile"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ResearchedRow is a research_metadata sidecar joined with its deep_research
// record, which arrives as a JSON object or null when the record is gone.
type ResearchedRow struct {
	ID             string
	DeepResearchID *string
	LogoURL        *string
	Status         string
	UpdatedAt      time.Time
	ResearchJSON   json.RawMessage
}

type Prospect struct {
	ID          string
	CompanyName string
	LogoURL     *string
	Metadata    map[string]any
	// Legacy contact array and per-contact outreach map keyed by profile URL.
	Leads     []map[string]any
	Outreach  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProspectLead is one normalized contact, unique per (ProspectID, ProfileURL).
type ProspectLead struct {
	ID           string
	ProspectID   string
	Name         string
	Title        *string
	ProfileURL   string
	Snippet      *string
	Location     *string
	OutreachData json.RawMessage
	// Position is the index in the legacy contact array the row came from.
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	ID          string
	Name        string
	HealthScore *float64
	Logo        *string
	City        *string
	Sector      *string
	CreatedAt   time.Time
}
