package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const newsLeadColumns = `n.id, n.company_name, n.headline, n.summary, n.image_url, n.category, n.signal_type, n.logo_url, n.added_to_research, n.created_at`

func newsLeadDest(item *NewsLead) []any {
	return []any{
		&item.ID,
		&item.CompanyName,
		&item.Headline,
		&item.Summary,
		&item.ImageURL,
		&item.Category,
		&item.SignalType,
		&item.LogoURL,
		&item.AddedToResearch,
		&item.CreatedAt,
	}
}

// ListNewsLeadsWithStatus returns news leads created at or after since (all
// of them when since is nil), newest first, each with its lead_status sidecar
// rendered as a JSON object.
func (s *PostgresStore) ListNewsLeadsWithStatus(ctx context.Context, since *time.Time) ([]NewsLeadRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+newsLeadColumns+`, row_to_json(ls)::text
		FROM news_leads n
		LEFT JOIN lead_status ls ON ls.signal_id = n.id
		WHERE ($1::timestamptz IS NULL OR n.created_at >= $1)
		ORDER BY n.created_at DESC
	`, since)
	if err != nil {
		return nil, entityErr("news_leads", "list news leads", err)
	}
	defer rows.Close()

	items := make([]NewsLeadRow, 0)
	for rows.Next() {
		var item NewsLeadRow
		var status []byte
		dest := append(newsLeadDest(&item.NewsLead), &status)
		if err := rows.Scan(dest...); err != nil {
			return nil, entityErr("news_leads", "scan news lead", err)
		}
		item.StatusJSON = status
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("news_leads", "iterate news leads", err)
	}
	return items, nil
}

// GetNewsLeadWithStatus loads one news lead; its sidecar is aggregated into a
// JSON array (or null) rather than an object.
func (s *PostgresStore) GetNewsLeadWithStatus(ctx context.Context, signalID string) (NewsLeadRow, error) {
	var item NewsLeadRow
	var status []byte
	dest := append(newsLeadDest(&item.NewsLead), &status)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+newsLeadColumns+`,
			(SELECT json_agg(ls) FROM lead_status ls WHERE ls.signal_id = n.id)::text
		FROM news_leads n
		WHERE n.id = $1
	`, signalID).Scan(dest...)
	if err != nil {
		return NewsLeadRow{}, entityErr("news_leads", "get news lead", err)
	}
	item.StatusJSON = status
	return item, nil
}

func (s *PostgresStore) ListNewsByCompany(ctx context.Context, companyName string) ([]NewsLead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+newsLeadColumns+`
		FROM news_leads n
		WHERE n.company_name = $1
		ORDER BY n.created_at DESC
	`, companyName)
	if err != nil {
		return nil, entityErr("news_leads", "list news by company", err)
	}
	defer rows.Close()

	items := make([]NewsLead, 0)
	for rows.Next() {
		var item NewsLead
		if err := rows.Scan(newsLeadDest(&item)...); err != nil {
			return nil, entityErr("news_leads", "scan news lead", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("news_leads", "iterate news leads", err)
	}
	return items, nil
}

// ListSignalLogos resolves the effective logo for each signal in one query,
// preferring the lead_status logo over the legacy news_leads column. Signals
// without any logo are absent from the result.
func (s *PostgresStore) ListSignalLogos(ctx context.Context, signalIDs []string) (map[string]string, error) {
	logos := make(map[string]string, len(signalIDs))
	if len(signalIDs) == 0 {
		return logos, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, COALESCE(ls.logo_url, n.logo_url)
		FROM news_leads n
		LEFT JOIN lead_status ls ON ls.signal_id = n.id
		WHERE n.id = ANY($1)
	`, signalIDs)
	if err != nil {
		return nil, entityErr("lead_status", "list signal logos", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var logo *string
		if err := rows.Scan(&id, &logo); err != nil {
			return nil, entityErr("lead_status", "scan signal logo", err)
		}
		if logo != nil && strings.TrimSpace(*logo) != "" {
			logos[id] = *logo
		}
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("lead_status", "iterate signal logos", err)
	}
	return logos, nil
}

// UpsertLeadStatus sets the pipeline stage for a signal, keeping any logo
// already recorded on the sidecar.
func (s *PostgresStore) UpsertLeadStatus(ctx context.Context, signalID, stage string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_status (signal_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (signal_id) DO UPDATE SET status=EXCLUDED.status, updated_at=NOW()
	`, signalID, stage)
	if err != nil {
		return entityErr("lead_status", "upsert lead status", err)
	}
	return nil
}

func (s *PostgresStore) ListResearchQueue(ctx context.Context) ([]ResearchQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, news_lead_id, company_name, research_status, added_at
		FROM research_queue
		ORDER BY added_at DESC
	`)
	if err != nil {
		return nil, entityErr("research_queue", "list research queue", err)
	}
	defer rows.Close()

	items := make([]ResearchQueueEntry, 0)
	for rows.Next() {
		var item ResearchQueueEntry
		if err := rows.Scan(&item.ID, &item.NewsLeadID, &item.CompanyName, &item.ResearchStatus, &item.AddedAt); err != nil {
			return nil, entityErr("research_queue", "scan research queue entry", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("research_queue", "iterate research queue", err)
	}
	return items, nil
}

// UpsertResearchQueueEntry inserts a queue entry or, when one already exists
// for the same news lead, overwrites its company and status.
func (s *PostgresStore) UpsertResearchQueueEntry(ctx context.Context, entry ResearchQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO research_queue (id, news_lead_id, company_name, research_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (news_lead_id) DO UPDATE SET company_name=EXCLUDED.company_name, research_status=EXCLUDED.research_status
	`, entry.ID, entry.NewsLeadID, entry.CompanyName, entry.ResearchStatus)
	if err != nil {
		return entityErr("research_queue", "upsert research queue entry", err)
	}
	return nil
}

func (s *PostgresStore) UpdateResearchStatus(ctx context.Context, entryID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE research_queue SET research_status=$2 WHERE id=$1`, entryID, status)
	if err != nil {
		return false, entityErr("research_queue", "update research status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, entityErr("research_queue", "update research status rows", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteResearchQueueEntry(ctx context.Context, entryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM research_queue WHERE id=$1`, entryID)
	if err != nil {
		return false, entityErr("research_queue", "delete research queue entry", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, entityErr("research_queue", "delete research queue entry rows", err)
	}
	return affected > 0, nil
}

// FindDeepResearch returns the first deep_research record whose company name
// contains name case-insensitively. No secondary order is applied, so which
// record wins among several matches is up to the database.
func (s *PostgresStore) FindDeepResearch(ctx context.Context, name string) (*DeepResearch, error) {
	var item DeepResearch
	var profile []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, lead_score, location, industry, profile::text, created_at
		FROM deep_research
		WHERE company_name ILIKE $1
		LIMIT 1
	`, ContainsPattern(name)).Scan(&item.ID, &item.CompanyName, &item.LeadScore, &item.Location, &item.Industry, &profile, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, entityErr("deep_research", "find deep research", err)
	}
	if item.Profile, err = decodeObject(profile); err != nil {
		return nil, entityErr("deep_research", "decode profile", err)
	}
	return &item, nil
}

// ListResearchedRows returns research_metadata rows with their deep_research
// record embedded as JSON, most recently updated first.
func (s *PostgresStore) ListResearchedRows(ctx context.Context) ([]ResearchedRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rm.id, rm.deep_research_id, rm.logo_url, rm.status, rm.updated_at, row_to_json(dr)::text
		FROM research_metadata rm
		LEFT JOIN deep_research dr ON dr.id = rm.deep_research_id
		ORDER BY rm.updated_at DESC
	`)
	if err != nil {
		return nil, entityErr("researched", "list researched", err)
	}
	defer rows.Close()

	items := make([]ResearchedRow, 0)
	for rows.Next() {
		var item ResearchedRow
		var research []byte
		if err := rows.Scan(&item.ID, &item.DeepResearchID, &item.LogoURL, &item.Status, &item.UpdatedAt, &research); err != nil {
			return nil, entityErr("researched", "scan researched row", err)
		}
		item.ResearchJSON = research
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("researched", "iterate researched", err)
	}
	return items, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, health_score, logo, city, sector, created_at
		FROM customers
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, entityErr("customers", "list customers", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		var item Customer
		if err := rows.Scan(&item.ID, &item.Name, &item.HealthScore, &item.Logo, &item.City, &item.Sector, &item.CreatedAt); err != nil {
			return nil, entityErr("customers", "scan customer", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("customers", "iterate customers", err)
	}
	return items, nil
}

func (s *PostgresStore) IsProspect(ctx context.Context, companyName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM prospects WHERE company_name=$1)`, companyName).Scan(&exists)
	if err != nil {
		return false, entityErr("prospects", "check prospect", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertProspect(ctx context.Context, item Prospect) error {
	metadata, err := encodeJSON(item.Metadata, "{}")
	if err != nil {
		return entityErr("prospects", "encode metadata", err)
	}
	leads, err := encodeJSON(item.Leads, "[]")
	if err != nil {
		return entityErr("prospects", "encode leads", err)
	}
	outreach, err := encodeJSON(item.Outreach, "{}")
	if err != nil {
		return entityErr("prospects", "encode outreach", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prospects (id, company_name, logo_url, metadata, leads, outreach)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb)
	`, item.ID, item.CompanyName, item.LogoURL, metadata, leads, outreach)
	if err != nil {
		return entityErr("prospects", "insert prospect", err)
	}
	return nil
}

const prospectColumns = `id, company_name, logo_url, metadata::text, leads::text, outreach::text, created_at, updated_at`

func scanProspect(scan func(...any) error) (Prospect, error) {
	var item Prospect
	var metadata, leads, outreach []byte
	if err := scan(&item.ID, &item.CompanyName, &item.LogoURL, &metadata, &leads, &outreach, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Prospect{}, err
	}
	var err error
	if item.Metadata, err = decodeObject(metadata); err != nil {
		return Prospect{}, fmt.Errorf("decode metadata: %w", err)
	}
	if item.Outreach, err = decodeObject(outreach); err != nil {
		return Prospect{}, fmt.Errorf("decode outreach: %w", err)
	}
	if len(leads) > 0 && string(leads) != "null" {
		if err := json.Unmarshal(leads, &item.Leads); err != nil {
			return Prospect{}, fmt.Errorf("decode leads: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) ListProspects(ctx context.Context) ([]Prospect, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+prospectColumns+` FROM prospects ORDER BY created_at DESC`)
	if err != nil {
		return nil, entityErr("prospects", "list prospects", err)
	}
	defer rows.Close()

	items := make([]Prospect, 0)
	for rows.Next() {
		item, err := scanProspect(rows.Scan)
		if err != nil {
			return nil, entityErr("prospects", "scan prospect", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("prospects", "iterate prospects", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProspect(ctx context.Context, prospectID string) (Prospect, error) {
	item, err := scanProspect(s.db.QueryRowContext(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id=$1`, prospectID).Scan)
	if err != nil {
		return Prospect{}, entityErr("prospects", "get prospect", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateProspectMetadata(ctx context.Context, prospectID string, metadata map[string]any) (bool, error) {
	encoded, err := encodeJSON(metadata, "{}")
	if err != nil {
		return false, entityErr("prospects", "encode metadata", err)
	}
	return s.execAffected(ctx, "prospects", "update prospect metadata", `
		UPDATE prospects SET metadata=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, prospectID, encoded)
}

// UpdateProspectLeads replaces the legacy leads column.
func (s *PostgresStore) UpdateProspectLeads(ctx context.Context, prospectID string, leads []map[string]any) (bool, error) {
	encoded, err := encodeJSON(leads, "[]")
	if err != nil {
		return false, entityErr("prospects", "encode leads", err)
	}
	return s.execAffected(ctx, "prospects", "update prospect leads", `
		UPDATE prospects SET leads=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, prospectID, encoded)
}

// UpdateProspectLeadsInMetadata stores the legacy leads array under
// metadata.leads for readers that predate the dedicated column.
func (s *PostgresStore) UpdateProspectLeadsInMetadata(ctx context.Context, prospectID string, leads []map[string]any) (bool, error) {
	encoded, err := encodeJSON(leads, "[]")
	if err != nil {
		return false, entityErr("prospects", "encode leads", err)
	}
	return s.execAffected(ctx, "prospects", "update prospect metadata leads", `
		UPDATE prospects
		SET metadata=jsonb_set(COALESCE(metadata, '{}'::jsonb), '{leads}', $2::jsonb, true), updated_at=NOW()
		WHERE id=$1
	`, prospectID, encoded)
}

// MergeProspectOutreach sets one entry of the legacy per-contact outreach map.
func (s *PostgresStore) MergeProspectOutreach(ctx context.Context, prospectID, profileURL string, payload json.RawMessage) (bool, error) {
	return s.execAffected(ctx, "prospects", "merge prospect outreach", `
		UPDATE prospects
		SET outreach=COALESCE(outreach, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb), updated_at=NOW()
		WHERE id=$1
	`, prospectID, profileURL, nullableJSON(payload))
}

func (s *PostgresStore) ListProspectLeads(ctx context.Context, prospectID string) ([]ProspectLead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prospect_id, name, title, profile_url, snippet, location, outreach_data::text, position, created_at, updated_at
		FROM prospect_leads
		WHERE prospect_id=$1
		ORDER BY position ASC, created_at ASC, id ASC
	`, prospectID)
	if err != nil {
		return nil, entityErr("prospect_leads", "list prospect leads", err)
	}
	defer rows.Close()

	items := make([]ProspectLead, 0)
	for rows.Next() {
		var item ProspectLead
		var outreach []byte
		if err := rows.Scan(
			&item.ID,
			&item.ProspectID,
			&item.Name,
			&item.Title,
			&item.ProfileURL,
			&item.Snippet,
			&item.Location,
			&outreach,
			&item.Position,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, entityErr("prospect_leads", "scan prospect lead", err)
		}
		item.OutreachData = outreach
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entityErr("prospect_leads", "iterate prospect leads", err)
	}
	return items, nil
}

// UpsertProspectLeads writes all rows in one statement keyed on
// (prospect_id, profile_url). Callers must not pass two rows with the same
// key. An incoming null outreach payload keeps the stored one.
func (s *PostgresStore) UpsertProspectLeads(ctx context.Context, leads []ProspectLead) error {
	if len(leads) == 0 {
		return nil
	}
	const width = 9
	values := make([]string, 0, len(leads))
	args := make([]any, 0, len(leads)*width)
	for i, lead := range leads {
		base := i * width
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d::jsonb, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, lead.ID, lead.ProspectID, lead.Name, lead.Title, lead.ProfileURL, lead.Snippet, lead.Location, nullableJSON(lead.OutreachData), lead.Position)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prospect_leads (id, prospect_id, name, title, profile_url, snippet, location, outreach_data, position)
		VALUES `+strings.Join(values, ", ")+`
		ON CONFLICT (prospect_id, profile_url) DO UPDATE SET
			name=EXCLUDED.name,
			title=EXCLUDED.title,
			snippet=EXCLUDED.snippet,
			location=EXCLUDED.location,
			outreach_data=COALESCE(EXCLUDED.outreach_data, prospect_leads.outreach_data),
			position=EXCLUDED.position,
			updated_at=NOW()
	`, args...)
	if err != nil {
		return entityErr("prospect_leads", "upsert prospect leads", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProspectLeadOutreach(ctx context.Context, prospectID, profileURL string, payload json.RawMessage) (bool, error) {
	return s.execAffected(ctx, "prospect_leads", "update prospect lead outreach", `
		UPDATE prospect_leads SET outreach_data=$3::jsonb, updated_at=NOW()
		WHERE prospect_id=$1 AND profile_url=$2
	`, prospectID, profileURL, nullableJSON(payload))
}

func (s *PostgresStore) execAffected(ctx context.Context, entity, action, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, entityErr(entity, action, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, entityErr(entity, action+" rows", err)
	}
	return affected > 0, nil
}

// ContainsPattern builds an ILIKE pattern matching value as a literal substring.
func ContainsPattern(value string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(strings.TrimSpace(value)) + "%"
}

func encodeJSON(value any, empty string) (string, error) {
	if value == nil {
		return empty, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(encoded) == "null" {
		return empty, nil
	}
	return string(encoded), nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func decodeObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
