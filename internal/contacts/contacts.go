// Package contacts owns a prospect's contact list. Contacts live in the
// prospect_leads table; older prospects still carry them as a JSON array on
// the prospect row, which is copied forward on first read.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"leadboard/api/internal/logger"
	"leadboard/api/internal/metrics"
	"leadboard/api/internal/store"
	"leadboard/api/internal/util"
)

var ErrMissingProfileURL = errors.New("profile url is required")

// Alternate legacy keys, in priority order.
var (
	titleKeys      = []string{"title", "job_title", "position", "headline", "role"}
	profileURLKeys = []string{"linkedin_url", "profile_url"}
)

const unknownName = "Unknown"

type Store interface {
	GetProspect(ctx context.Context, prospectID string) (store.Prospect, error)
	ListProspectLeads(ctx context.Context, prospectID string) ([]store.ProspectLead, error)
	UpsertProspectLeads(ctx context.Context, leads []store.ProspectLead) error
	UpdateProspectLeads(ctx context.Context, prospectID string, leads []map[string]any) (bool, error)
	UpdateProspectLeadsInMetadata(ctx context.Context, prospectID string, leads []map[string]any) (bool, error)
	UpdateProspectLeadOutreach(ctx context.Context, prospectID, profileURL string, payload json.RawMessage) (bool, error)
	MergeProspectOutreach(ctx context.Context, prospectID, profileURL string, payload json.RawMessage) (bool, error)
}

type Migrator struct {
	store  Store
	logger *zap.Logger
}

func New(st Store, log *zap.Logger) *Migrator {
	return &Migrator{store: st, logger: logger.OrNop(log)}
}

// GetProspectLeads returns the normalized contacts. When there are none yet
// and the prospect still has a legacy array, the array is migrated first.
func (m *Migrator) GetProspectLeads(ctx context.Context, prospectID string) ([]store.ProspectLead, error) {
	leads, err := m.store.ListProspectLeads(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("get prospect leads: %w", err)
	}
	if len(leads) > 0 {
		return leads, nil
	}

	prospect, err := m.store.GetProspect(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("get prospect leads: %w", err)
	}
	if len(prospect.Leads) == 0 {
		return leads, nil
	}

	rows := DeriveLeads(prospect.ID, prospect.Leads, prospect.Outreach)
	if len(rows) == 0 {
		metrics.ContactMigrations.WithLabelValues("empty").Inc()
		m.logger.Info("legacy contacts had no usable profile urls",
			zap.String("prospect_id", prospectID),
			zap.Int("legacy_count", len(prospect.Leads)),
		)
		return leads, nil
	}

	if err := m.store.UpsertProspectLeads(ctx, rows); err != nil {
		metrics.ContactMigrations.WithLabelValues(metrics.ResultFailed).Inc()
		return nil, fmt.Errorf("migrate legacy leads: %w", err)
	}
	metrics.ContactMigrations.WithLabelValues(metrics.ResultOK).Inc()
	m.logger.Info("legacy contacts migrated",
		zap.String("prospect_id", prospectID),
		zap.Int("migrated", len(rows)),
		zap.Int("dropped", len(prospect.Leads)-len(rows)),
	)

	leads, err = m.store.ListProspectLeads(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("get prospect leads: %w", err)
	}
	return leads, nil
}

// SyncLeads replaces the legacy array and upserts the matching normalized
// rows, then returns the normalized list.
func (m *Migrator) SyncLeads(ctx context.Context, prospectID string, legacy []map[string]any) ([]store.ProspectLead, error) {
	prospect, err := m.store.GetProspect(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("sync leads: %w", err)
	}
	if _, err := m.UpdateLegacyLeads(ctx, prospectID, legacy); err != nil {
		return nil, fmt.Errorf("sync leads: %w", err)
	}
	if err := m.store.UpsertProspectLeads(ctx, DeriveLeads(prospect.ID, legacy, prospect.Outreach)); err != nil {
		return nil, fmt.Errorf("sync leads: %w", err)
	}
	leads, err := m.store.ListProspectLeads(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("sync leads: %w", err)
	}
	return leads, nil
}

// UpdateLegacyLeads writes the whole legacy array to the leads column and,
// if that write errors, to metadata.leads instead.
func (m *Migrator) UpdateLegacyLeads(ctx context.Context, prospectID string, legacy []map[string]any) (bool, error) {
	if legacy == nil {
		legacy = []map[string]any{}
	}
	ok, err := m.store.UpdateProspectLeads(ctx, prospectID, legacy)
	if err == nil {
		return ok, nil
	}
	m.logger.Warn("leads column write failed, falling back to metadata",
		zap.String("prospect_id", prospectID),
		zap.Error(err),
	)

	ok, fallbackErr := m.store.UpdateProspectLeadsInMetadata(ctx, prospectID, legacy)
	if fallbackErr != nil {
		return false, fmt.Errorf("update legacy leads: %w", errors.Join(err, fallbackErr))
	}
	return ok, nil
}

// UpdateLeadOutreach stores the outreach payload on the contact row and mirrors
// it into the legacy outreach map. The mirror is best effort.
func (m *Migrator) UpdateLeadOutreach(ctx context.Context, prospectID, profileURL string, payload json.RawMessage) (bool, error) {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return false, ErrMissingProfileURL
	}
	ok, err := m.store.UpdateProspectLeadOutreach(ctx, prospectID, profileURL, payload)
	if err != nil {
		return false, fmt.Errorf("update lead outreach: %w", err)
	}
	if _, err := m.store.MergeProspectOutreach(ctx, prospectID, profileURL, payload); err != nil {
		m.logger.Warn("legacy outreach mirror failed",
			zap.String("prospect_id", prospectID),
			zap.String("profile_url", profileURL),
			zap.Error(err),
		)
	}
	return ok, nil
}

// DeriveLeads maps legacy entries to contact rows. Entries without a profile
// url are dropped. When two entries share a url the later one wins, keeping
// the position of the first.
func DeriveLeads(prospectID string, legacy []map[string]any, outreach map[string]any) []store.ProspectLead {
	out := make([]store.ProspectLead, 0, len(legacy))
	index := make(map[string]int, len(legacy))

	for _, entry := range legacy {
		profileURL := firstString(entry, profileURLKeys...)
		if profileURL == "" {
			continue
		}

		name := firstString(entry, "name", "full_name")
		if name == "" {
			name = unknownName
		}
		lead := store.ProspectLead{
			ID:           util.NewID("pl"),
			ProspectID:   prospectID,
			Name:         name,
			Title:        optionalString(firstString(entry, titleKeys...)),
			ProfileURL:   profileURL,
			Snippet:      optionalString(firstString(entry, "snippet")),
			Location:     optionalString(firstString(entry, "location")),
			OutreachData: outreachFor(outreach, profileURL),
		}

		if pos, ok := index[profileURL]; ok {
			lead.ID = out[pos].ID
			lead.Position = pos
			out[pos] = lead
			continue
		}
		lead.Position = len(out)
		index[profileURL] = len(out)
		out = append(out, lead)
	}
	return out
}

func firstString(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := entry[key].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func outreachFor(outreach map[string]any, profileURL string) json.RawMessage {
	value, ok := outreach[profileURL]
	if !ok || value == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return encoded
}
