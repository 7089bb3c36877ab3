package search

import (
	"context"
	"database/sql"
	"fmt"

	"leadboard/api/internal/store"
)

// PgSource runs the ILIKE company-name search against one table. Column
// names differ per table and are aliased onto Result.
type PgSource struct {
	db      *sql.DB
	kind    ResultType
	selects string
	from    string
	nameCol string
}

func NewProspectSource(db *sql.DB) *PgSource {
	return &PgSource{
		db:   db,
		kind: ResultProspect,
		selects: `id, company_name,
			CASE WHEN jsonb_typeof(metadata->'lead_score') = 'number' THEN (metadata->>'lead_score')::float8 END,
			logo_url, metadata->>'location', metadata->>'industry'`,
		from:    "prospects",
		nameCol: "company_name",
	}
}

func NewCustomerSource(db *sql.DB) *PgSource {
	return &PgSource{
		db:      db,
		kind:    ResultCustomer,
		selects: `id, name, health_score::float8, logo, city, sector`,
		from:    "customers",
		nameCol: "name",
	}
}

func (p *PgSource) Type() ResultType {
	return p.kind
}

func (p *PgSource) Search(ctx context.Context, q Query) ([]Result, error) {
	q = q.normalized()
	if q.Text == "" {
		return []Result{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ILIKE $1 ORDER BY %s ASC LIMIT $2`, p.selects, p.from, p.nameCol, p.nameCol)
	return p.collect(ctx, query, store.ContainsPattern(q.Text), q.Limit)
}

// LoadAll returns every row of the table, for reindexing.
func (p *PgSource) LoadAll(ctx context.Context) ([]Result, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s ASC`, p.selects, p.from, p.nameCol)
	return p.collect(ctx, query)
}

func (p *PgSource) collect(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p.from, err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		r := Result{Type: p.kind}
		if err := rows.Scan(&r.ID, &r.CompanyName, &r.Score, &r.LogoURL, &r.Location, &r.Industry); err != nil {
			return nil, fmt.Errorf("scan %s hit: %w", p.from, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s hits: %w", p.from, err)
	}
	return results, nil
}
