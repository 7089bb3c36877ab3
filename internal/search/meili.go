package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"leadboard/api/internal/logger"
)

const idxCompanies = "leadboard_companies"

// companyDoc is the indexed form of a Result. Prospect and customer ids may
// collide, so the primary key combines type and id.
type companyDoc struct {
	DocID       string     `json:"doc_id"`
	RecordID    string     `json:"record_id"`
	Type        ResultType `json:"type"`
	CompanyName string     `json:"company_name"`
	Score       *float64   `json:"score"`
	LogoURL     *string    `json:"logo_url"`
	Location    *string    `json:"location"`
	Industry    *string    `json:"industry"`
}

func toDoc(r Result) companyDoc {
	return companyDoc{
		DocID:       string(r.Type) + "_" + r.ID,
		RecordID:    r.ID,
		Type:        r.Type,
		CompanyName: r.CompanyName,
		Score:       r.Score,
		LogoURL:     r.LogoURL,
		Location:    r.Location,
		Industry:    r.Industry,
	}
}

func (d companyDoc) result() Result {
	return Result{
		ID:          d.RecordID,
		CompanyName: d.CompanyName,
		Score:       d.Score,
		LogoURL:     d.LogoURL,
		Type:        d.Type,
		Location:    d.Location,
		Industry:    d.Industry,
	}
}

// Meili is the typo-tolerant company index.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger.OrNop(log),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCompanies,
		PrimaryKey: "doc_id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxCompanies), zap.Error(err))
	}

	index := m.client.Index(idxCompanies)
	filterable := []interface{}{"type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.String("index", idxCompanies), zap.Error(err))
	}
	searchable := []string{"company_name", "industry", "location"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxCompanies), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the index for one collection.
func (m *Meili) Search(_ context.Context, kind ResultType, q Query) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxCompanies,
			Query:    q.Text,
			Limit:    int64(q.Limit),
			Filter:   []string{fmt.Sprintf("type = %q", string(kind))},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0)
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			doc, err := decodeHit(hit)
			if err != nil {
				m.logger.Warn("skip undecodable hit", zap.Error(err))
				continue
			}
			results = append(results, doc.result())
		}
	}
	return results, nil
}

func decodeHit(hit meili.Hit) (companyDoc, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return companyDoc{}, err
	}
	var doc companyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return companyDoc{}, err
	}
	return doc, nil
}

// IndexCompanies adds or replaces the given records.
func (m *Meili) IndexCompanies(results []Result) error {
	if len(results) == 0 {
		return nil
	}
	docs := make([]companyDoc, 0, len(results))
	for _, r := range results {
		docs = append(docs, toDoc(r))
	}
	_, err := m.client.Index(idxCompanies).AddDocuments(docs, nil)
	return err
}

// MeiliSource serves one collection from the index, falling back to the
// substring source when the index is unhealthy or errors.
type MeiliSource struct {
	meili    *Meili
	fallback Source
	logger   *zap.Logger
}

func NewMeiliSource(m *Meili, fallback Source, log *zap.Logger) *MeiliSource {
	return &MeiliSource{meili: m, fallback: fallback, logger: logger.OrNop(log)}
}

func (s *MeiliSource) Type() ResultType {
	return s.fallback.Type()
}

func (s *MeiliSource) Search(ctx context.Context, q Query) ([]Result, error) {
	q = q.normalized()
	if q.Mode != ModeFuzzy || s.meili == nil || !s.meili.Healthy() {
		return s.fallback.Search(ctx, q)
	}
	results, err := s.meili.Search(ctx, s.Type(), q)
	if err == nil {
		return results, nil
	}
	s.logger.Warn("meilisearch error, falling back to postgres", zap.String("source", string(s.Type())), zap.Error(err))
	return s.fallback.Search(ctx, q)
}
