package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadboard/api/internal/config"
	"leadboard/api/internal/contacts"
	"leadboard/api/internal/logger"
	"leadboard/api/internal/metrics"
	"leadboard/api/internal/pipeline"
	"leadboard/api/internal/queue"
	"leadboard/api/internal/search"
	"leadboard/api/internal/store"
	"leadboard/api/internal/viewmodel"
)

// Dashboard collection names, also used as keys of Dashboard.Errors.
const (
	CollectionCustomers   = "customers"
	CollectionDiscoveries = "discoveries"
	CollectionResearched  = "researched"
	CollectionProspects   = "prospects"
)

type dataStore interface {
	pipeline.Store
	contacts.Store
	Ping(context.Context) error
	ListNewsLeadsWithStatus(context.Context, *time.Time) ([]store.NewsLeadRow, error)
	ListNewsByCompany(context.Context, string) ([]store.NewsLead, error)
	ListSignalLogos(context.Context, []string) (map[string]string, error)
	ListResearchQueue(context.Context) ([]store.ResearchQueueEntry, error)
	ListResearchedRows(context.Context) ([]store.ResearchedRow, error)
	ListCustomers(context.Context) ([]store.Customer, error)
	ListProspects(context.Context) ([]store.Prospect, error)
	UpdateProspectMetadata(context.Context, string, map[string]any) (bool, error)
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
	Index(context.Context, ...search.Result)
}

type Service struct {
	store    dataStore
	pipeline *pipeline.Machine
	contacts *contacts.Migrator
	search   searcher
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, searchService searcher, log *zap.Logger) *Service {
	log = logger.OrNop(log)
	return &Service{
		store:    dataStore,
		pipeline: pipeline.New(dataStore, log.Named("pipeline"), cfg.ProspectSource),
		contacts: contacts.New(dataStore, log.Named("contacts")),
		search:   searchService,
		logger:   log,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type Dashboard struct {
	Customers   []viewmodel.Customer       `json:"customers"`
	Discoveries []viewmodel.EnrichedSignal `json:"discoveries"`
	Researched  []viewmodel.ResearchedItem `json:"researched"`
	Prospects   []viewmodel.Prospect       `json:"prospects"`
	Counts      map[string]int             `json:"counts"`
	// Errors holds one message per collection that failed to load.
	Errors map[string]string `json:"errors"`
}

// Dashboard loads the four collections concurrently. A failed collection is
// returned empty with its error message; the call itself never fails.
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	out := Dashboard{
		Customers:   []viewmodel.Customer{},
		Discoveries: []viewmodel.EnrichedSignal{},
		Researched:  []viewmodel.ResearchedItem{},
		Prospects:   []viewmodel.Prospect{},
	}
	errs := make(map[string]error, 4)
	var customersErr, discoveriesErr, researchedErr, prospectsErr error

	var g errgroup.Group
	g.Go(func() error {
		items, err := s.store.ListCustomers(ctx)
		if err != nil {
			customersErr = err
			return nil
		}
		out.Customers = viewmodel.FromCustomers(items)
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ListNewsLeadsWithStatus(ctx, nil)
		if err != nil {
			discoveriesErr = err
			return nil
		}
		out.Discoveries = viewmodel.EnrichSignals(rows)
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ListResearchedRows(ctx)
		if err != nil {
			researchedErr = err
			return nil
		}
		out.Researched = viewmodel.FlattenResearched(rows)
		return nil
	})
	g.Go(func() error {
		items, err := s.store.ListProspects(ctx)
		if err != nil {
			prospectsErr = err
			return nil
		}
		out.Prospects = viewmodel.FromProspects(items)
		return nil
	})
	_ = g.Wait()

	errs[CollectionCustomers] = customersErr
	errs[CollectionDiscoveries] = discoveriesErr
	errs[CollectionResearched] = researchedErr
	errs[CollectionProspects] = prospectsErr

	out.Errors = map[string]string{}
	for collection, err := range errs {
		if err == nil {
			continue
		}
		metrics.DegradedCollections.WithLabelValues(collection).Inc()
		s.logger.Warn("dashboard collection degraded",
			zap.String("collection", collection),
			zap.String("entity", store.EntityOf(err)),
			zap.Error(err),
		)
		out.Errors[collection] = err.Error()
	}

	out.Counts = map[string]int{
		CollectionCustomers:   len(out.Customers),
		CollectionDiscoveries: len(out.Discoveries),
		CollectionResearched:  len(out.Researched),
		CollectionProspects:   len(out.Prospects),
	}
	return out
}

func (s *Service) SignalsByWindow(ctx context.Context, window string) ([]viewmodel.EnrichedSignal, error) {
	w, err := viewmodel.ParseWindow(window)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_WINDOW", err.Error(), map[string]any{
			"allowed": []viewmodel.Window{viewmodel.WindowToday, viewmodel.WindowLast7Days, viewmodel.WindowAllTime},
		})
	}
	rows, err := s.store.ListNewsLeadsWithStatus(ctx, w.Since(s.now()))
	if err != nil {
		return nil, fmt.Errorf("fetch signals: %w", err)
	}
	return viewmodel.EnrichSignals(rows), nil
}

// ResearchQueue returns the queue grouped by company with logos resolved.
func (s *Service) ResearchQueue(ctx context.Context) ([]queue.Item, error) {
	entries, err := s.store.ListResearchQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch research queue: %w", err)
	}
	items := queue.Group(entries)
	if err := queue.AttachLogos(ctx, s.store, items); err != nil {
		return nil, fmt.Errorf("fetch research queue: %w", err)
	}
	return items, nil
}

func (s *Service) queueItem(ctx context.Context, companyName string) (*queue.Item, error) {
	items, err := s.ResearchQueue(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].CompanyName == companyName {
			return &items[i], nil
		}
	}
	return nil, nil
}

type ResearchDetail struct {
	Company    string              `json:"company"`
	Research   *store.DeepResearch `json:"research"`
	QueueItem  *queue.Item         `json:"queue_item"`
	Reconciled bool                `json:"reconciled"`
}

// ResearchDetail reads the research record and queue membership for a
// company, then, as a separate command, marks the queue entry completed when
// research exists. A failed reconcile is logged and the read still succeeds.
func (s *Service) ResearchDetail(ctx context.Context, companyName string) (ResearchDetail, error) {
	companyName = strings.TrimSpace(companyName)
	research, err := s.pipeline.FindDeepResearch(ctx, companyName)
	if err != nil {
		return ResearchDetail{}, err
	}
	item, err := s.queueItem(ctx, companyName)
	if err != nil {
		return ResearchDetail{}, err
	}
	detail := ResearchDetail{Company: companyName, Research: research, QueueItem: item}
	if item == nil || research == nil {
		return detail, nil
	}

	result, err := s.pipeline.ReconcileKnown(ctx, *item, research)
	if err != nil {
		s.logger.Warn("research status reconcile failed", zap.String("company", companyName), zap.Error(err))
		return detail, nil
	}
	if result.Updated {
		detail.Reconciled = true
		detail.QueueItem.ResearchStatus = store.ResearchCompleted
		detail.QueueItem.CompositeStatus = store.ResearchCompleted
	}
	return detail, nil
}

// ReconcileQueue applies the research status reconcile to every queued
// company and returns how many entries moved to completed.
func (s *Service) ReconcileQueue(ctx context.Context) (int, error) {
	items, err := s.ResearchQueue(ctx)
	if err != nil {
		return 0, err
	}
	return s.pipeline.ReconcileAll(ctx, items)
}

func (s *Service) FindDeepResearch(ctx context.Context, name string) (*store.DeepResearch, error) {
	return s.pipeline.FindDeepResearch(ctx, name)
}

func (s *Service) NewsByCompany(ctx context.Context, companyName string) ([]viewmodel.Signal, error) {
	items, err := s.store.ListNewsByCompany(ctx, companyName)
	if err != nil {
		return nil, fmt.Errorf("fetch company news: %w", err)
	}
	return viewmodel.FromNewsLeads(items), nil
}

func (s *Service) IsProspect(ctx context.Context, companyName string) (bool, error) {
	return s.pipeline.IsProspect(ctx, companyName)
}

func (s *Service) PromoteToResearch(ctx context.Context, signalID string) (pipeline.Transition, error) {
	return s.pipeline.PromoteToResearch(ctx, signalID)
}

func (s *Service) SetResearchStatus(ctx context.Context, entryID, status string) (bool, error) {
	return s.pipeline.SetResearchStatus(ctx, entryID, status)
}

func (s *Service) RemoveFromResearch(ctx context.Context, entryID string) (bool, error) {
	return s.pipeline.RemoveFromResearch(ctx, entryID)
}

// PromoteToProspect inserts a prospect without checking for an existing one.
func (s *Service) PromoteToProspect(ctx context.Context, companyName string, logoURL *string) (viewmodel.Prospect, error) {
	created, err := s.pipeline.PromoteToProspect(ctx, companyName, logoURL)
	if err != nil {
		return viewmodel.Prospect{}, err
	}
	s.indexProspect(ctx, created)
	return viewmodel.FromProspect(created), nil
}

// PromoteGroupToProspect promotes a queued company and its linked signals.
func (s *Service) PromoteGroupToProspect(ctx context.Context, companyName string) (pipeline.GroupPromotion, error) {
	item, err := s.queueItem(ctx, strings.TrimSpace(companyName))
	if err != nil {
		return pipeline.GroupPromotion{}, err
	}
	if item == nil {
		return pipeline.GroupPromotion{}, domainError(http.StatusNotFound, "NOT_QUEUED", "Company is not in the research queue", nil)
	}
	result, err := s.pipeline.PromoteGroupToProspect(ctx, *item)
	if err != nil {
		return pipeline.GroupPromotion{}, err
	}
	if result.Created && result.Prospect != nil {
		s.indexProspect(ctx, *result.Prospect)
	}
	return result, nil
}

func (s *Service) ListProspects(ctx context.Context) ([]viewmodel.Prospect, error) {
	items, err := s.store.ListProspects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}
	return viewmodel.FromProspects(items), nil
}

func (s *Service) GetProspect(ctx context.Context, prospectID string) (viewmodel.Prospect, error) {
	item, err := s.store.GetProspect(ctx, prospectID)
	if err != nil {
		return viewmodel.Prospect{}, fmt.Errorf("get prospect: %w", err)
	}
	return viewmodel.FromProspect(item), nil
}

// UpdateProspectMetadata merges partial into the stored metadata and stamps
// updated_at.
func (s *Service) UpdateProspectMetadata(ctx context.Context, prospectID string, partial map[string]any) (bool, error) {
	current, err := s.store.GetProspect(ctx, prospectID)
	if err != nil {
		return false, fmt.Errorf("update prospect metadata: %w", err)
	}
	merged := make(map[string]any, len(current.Metadata)+len(partial)+1)
	for key, value := range current.Metadata {
		merged[key] = value
	}
	for key, value := range partial {
		merged[key] = value
	}
	merged["updated_at"] = s.now().UTC().Format(time.RFC3339)

	ok, err := s.store.UpdateProspectMetadata(ctx, prospectID, merged)
	if err != nil {
		return false, fmt.Errorf("update prospect metadata: %w", err)
	}
	return ok, nil
}

func (s *Service) ProspectLeads(ctx context.Context, prospectID string) ([]viewmodel.ProspectLead, error) {
	leads, err := s.contacts.GetProspectLeads(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	return viewmodel.FromProspectLeads(leads), nil
}

func (s *Service) SyncProspectLeads(ctx context.Context, prospectID string, legacy []map[string]any) ([]viewmodel.ProspectLead, error) {
	leads, err := s.contacts.SyncLeads(ctx, prospectID, legacy)
	if err != nil {
		return nil, err
	}
	return viewmodel.FromProspectLeads(leads), nil
}

func (s *Service) UpdateLeadOutreach(ctx context.Context, prospectID, profileURL string, payload []byte) (bool, error) {
	return s.contacts.UpdateLeadOutreach(ctx, prospectID, profileURL, payload)
}

// Search never fails; a service without a search backend returns no hits.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(q.Text)}
	}
	return s.search.Search(ctx, q)
}

// indexProspect makes a new prospect searchable without waiting for the
// reindex job.
func (s *Service) indexProspect(ctx context.Context, p store.Prospect) {
	if s.search == nil {
		return
	}
	s.search.Index(ctx, search.Result{
		ID:          p.ID,
		CompanyName: p.CompanyName,
		LogoURL:     p.LogoURL,
		Type:        search.ResultProspect,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, pipeline.ErrEmptyCompany) ||
		errors.Is(err, pipeline.ErrEmptySignal) ||
		errors.Is(err, pipeline.ErrInvalidResearchStatus) ||
		errors.Is(err, contacts.ErrMissingProfileURL)
}
