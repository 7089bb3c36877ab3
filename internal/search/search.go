package search

import (
	"context"
	"strings"
)

// ResultType names the collection a hit came from.
type ResultType string

const (
	ResultProspect ResultType = "prospect"
	ResultCustomer ResultType = "customer"
)

// Mode selects how the query text is matched.
type Mode string

const (
	// ModeSubstring matches company names containing the text, ignoring case.
	ModeSubstring Mode = "substring"
	// ModeFuzzy uses the typo-tolerant index when it is reachable and falls
	// back to substring matching otherwise.
	ModeFuzzy Mode = "fuzzy"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Result is one hit in the shared shape both collections are mapped onto.
type Result struct {
	ID          string     `json:"id"`
	CompanyName string     `json:"company_name"`
	Score       *float64   `json:"score"`
	LogoURL     *string    `json:"logo_url"`
	Type        ResultType `json:"type"`
	Location    *string    `json:"location"`
	Industry    *string    `json:"industry"`
}

type Query struct {
	Text  string
	Mode  Mode
	Limit int
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Mode != ModeFuzzy {
		q.Mode = ModeSubstring
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	// Failed lists the sources that errored and contributed nothing.
	Failed []ResultType `json:"failed,omitempty"`
}

// Source searches one collection.
type Source interface {
	Type() ResultType
	Search(ctx context.Context, q Query) ([]Result, error)
}

// RecordLoader lists every record of one collection for indexing.
type RecordLoader interface {
	Type() ResultType
	LoadAll(ctx context.Context) ([]Result, error)
}
