package app

import (
	"context"
	"encoding/json"
	"time"

	"leadboard/api/internal/config"
	"leadboard/api/internal/search"
	"leadboard/api/internal/store"
)

type fakeStore struct {
	pingFn                     func(context.Context) error
	listNewsLeadsWithStatusFn  func(context.Context, *time.Time) ([]store.NewsLeadRow, error)
	getNewsLeadWithStatusFn    func(context.Context, string) (store.NewsLeadRow, error)
	listNewsByCompanyFn        func(context.Context, string) ([]store.NewsLead, error)
	listSignalLogosFn          func(context.Context, []string) (map[string]string, error)
	upsertLeadStatusFn         func(context.Context, string, string) error
	listResearchQueueFn        func(context.Context) ([]store.ResearchQueueEntry, error)
	upsertResearchQueueEntryFn func(context.Context, store.ResearchQueueEntry) error
	updateResearchStatusFn     func(context.Context, string, string) (bool, error)
	deleteResearchQueueEntryFn func(context.Context, string) (bool, error)
	findDeepResearchFn         func(context.Context, string) (*store.DeepResearch, error)
	listResearchedRowsFn       func(context.Context) ([]store.ResearchedRow, error)
	listCustomersFn            func(context.Context) ([]store.Customer, error)
	isProspectFn               func(context.Context, string) (bool, error)
	insertProspectFn           func(context.Context, store.Prospect) error
	listProspectsFn            func(context.Context) ([]store.Prospect, error)
	getProspectFn              func(context.Context, string) (store.Prospect, error)
	updateProspectMetadataFn   func(context.Context, string, map[string]any) (bool, error)
	listProspectLeadsFn        func(context.Context, string) ([]store.ProspectLead, error)
	upsertProspectLeadsFn      func(context.Context, []store.ProspectLead) error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) ListNewsLeadsWithStatus(ctx context.Context, since *time.Time) ([]store.NewsLeadRow, error) {
	if f.listNewsLeadsWithStatusFn != nil {
		return f.listNewsLeadsWithStatusFn(ctx, since)
	}
	return []store.NewsLeadRow{}, nil
}
func (f *fakeStore) GetNewsLeadWithStatus(ctx context.Context, signalID string) (store.NewsLeadRow, error) {
	if f.getNewsLeadWithStatusFn != nil {
		return f.getNewsLeadWithStatusFn(ctx, signalID)
	}
	return store.NewsLeadRow{NewsLead: store.NewsLead{ID: signalID, CompanyName: "Acme"}}, nil
}
func (f *fakeStore) ListNewsByCompany(ctx context.Context, name string) ([]store.NewsLead, error) {
	if f.listNewsByCompanyFn != nil {
		return f.listNewsByCompanyFn(ctx, name)
	}
	return []store.NewsLead{}, nil
}
func (f *fakeStore) ListSignalLogos(ctx context.Context, ids []string) (map[string]string, error) {
	if f.listSignalLogosFn != nil {
		return f.listSignalLogosFn(ctx, ids)
	}
	return map[string]string{}, nil
}
func (f *fakeStore) UpsertLeadStatus(ctx context.Context, signalID, stage string) error {
	if f.upsertLeadStatusFn != nil {
		return f.upsertLeadStatusFn(ctx, signalID, stage)
	}
	return nil
}
func (f *fakeStore) ListResearchQueue(ctx context.Context) ([]store.ResearchQueueEntry, error) {
	if f.listResearchQueueFn != nil {
		return f.listResearchQueueFn(ctx)
	}
	return []store.ResearchQueueEntry{}, nil
}
func (f *fakeStore) UpsertResearchQueueEntry(ctx context.Context, entry store.ResearchQueueEntry) error {
	if f.upsertResearchQueueEntryFn != nil {
		return f.upsertResearchQueueEntryFn(ctx, entry)
	}
	return nil
}
func (f *fakeStore) UpdateResearchStatus(ctx context.Context, entryID, status string) (bool, error) {
	if f.updateResearchStatusFn != nil {
		return f.updateResearchStatusFn(ctx, entryID, status)
	}
	return true, nil
}
func (f *fakeStore) DeleteResearchQueueEntry(ctx context.Context, entryID string) (bool, error) {
	if f.deleteResearchQueueEntryFn != nil {
		return f.deleteResearchQueueEntryFn(ctx, entryID)
	}
	return true, nil
}
func (f *fakeStore) FindDeepResearch(ctx context.Context, name string) (*store.DeepResearch, error) {
	if f.findDeepResearchFn != nil {
		return f.findDeepResearchFn(ctx, name)
	}
	return nil, nil
}
func (f *fakeStore) ListResearchedRows(ctx context.Context) ([]store.ResearchedRow, error) {
	if f.listResearchedRowsFn != nil {
		return f.listResearchedRowsFn(ctx)
	}
	return []store.ResearchedRow{}, nil
}
func (f *fakeStore) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	if f.listCustomersFn != nil {
		return f.listCustomersFn(ctx)
	}
	return []store.Customer{}, nil
}
func (f *fakeStore) IsProspect(ctx context.Context, name string) (bool, error) {
	if f.isProspectFn != nil {
		return f.isProspectFn(ctx, name)
	}
	return false, nil
}
func (f *fakeStore) InsertProspect(ctx context.Context, item store.Prospect) error {
	if f.insertProspectFn != nil {
		return f.insertProspectFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) ListProspects(ctx context.Context) ([]store.Prospect, error) {
	if f.listProspectsFn != nil {
		return f.listProspectsFn(ctx)
	}
	return []store.Prospect{}, nil
}
func (f *fakeStore) GetProspect(ctx context.Context, prospectID string) (store.Prospect, error) {
	if f.getProspectFn != nil {
		return f.getProspectFn(ctx, prospectID)
	}
	return store.Prospect{ID: prospectID}, nil
}
func (f *fakeStore) UpdateProspectMetadata(ctx context.Context, prospectID string, metadata map[string]any) (bool, error) {
	if f.updateProspectMetadataFn != nil {
		return f.updateProspectMetadataFn(ctx, prospectID, metadata)
	}
	return true, nil
}
func (f *fakeStore) UpdateProspectLeads(context.Context, string, []map[string]any) (bool, error) {
	return true, nil
}
func (f *fakeStore) UpdateProspectLeadsInMetadata(context.Context, string, []map[string]any) (bool, error) {
	return true, nil
}
func (f *fakeStore) ListProspectLeads(ctx context.Context, prospectID string) ([]store.ProspectLead, error) {
	if f.listProspectLeadsFn != nil {
		return f.listProspectLeadsFn(ctx, prospectID)
	}
	return []store.ProspectLead{}, nil
}
func (f *fakeStore) UpsertProspectLeads(ctx context.Context, leads []store.ProspectLead) error {
	if f.upsertProspectLeadsFn != nil {
		return f.upsertProspectLeadsFn(ctx, leads)
	}
	return nil
}
func (f *fakeStore) UpdateProspectLeadOutreach(context.Context, string, string, json.RawMessage) (bool, error) {
	return true, nil
}
func (f *fakeStore) MergeProspectOutreach(context.Context, string, string, json.RawMessage) (bool, error) {
	return true, nil
}

type fakeSearch struct {
	searchFn func(context.Context, search.Query) search.Response
	indexed  []search.Result
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) Index(_ context.Context, results ...search.Result) {
	f.indexed = append(f.indexed, results...)
}

func newTestService(fs *fakeStore, fsearch *fakeSearch) *Service {
	svc := New(config.Config{ProspectSource: "research_queue"}, fs, fsearch, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}
