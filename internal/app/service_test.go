package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"leadboard/api/internal/search"
	"leadboard/api/internal/store"
)

func storeErr(entity string) error {
	return fmt.Errorf("list: %w", &store.EntityError{Entity: entity, Err: errors.New("connection reset")})
}

func TestDashboardDegradesPerCollection(t *testing.T) {
	fs := &fakeStore{
		listCustomersFn: func(context.Context) ([]store.Customer, error) {
			return []store.Customer{{ID: "c1", Name: "Zeta"}}, nil
		},
		listNewsLeadsWithStatusFn: func(context.Context, *time.Time) ([]store.NewsLeadRow, error) {
			return []store.NewsLeadRow{{NewsLead: store.NewsLead{ID: "s1", CompanyName: "Acme"}}}, nil
		},
		listResearchedRowsFn: func(context.Context) ([]store.ResearchedRow, error) {
			return nil, storeErr("researched")
		},
		listProspectsFn: func(context.Context) ([]store.Prospect, error) {
			return []store.Prospect{{ID: "p1", CompanyName: "Beta"}}, nil
		},
	}

	got := newTestService(fs, &fakeSearch{}).Dashboard(context.Background())

	if len(got.Customers) != 1 || len(got.Discoveries) != 1 || len(got.Prospects) != 1 {
		t.Fatalf("expected healthy collections populated, got %+v", got)
	}
	if got.Researched == nil || len(got.Researched) != 0 {
		t.Fatalf("expected empty researched collection, got %v", got.Researched)
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors["researched"], "connection reset") {
		t.Fatalf("expected single researched error, got %v", got.Errors)
	}
	if got.Counts["customers"] != 1 || got.Counts["researched"] != 0 {
		t.Fatalf("unexpected counts %v", got.Counts)
	}
	if got.Discoveries[0].LeadStatus != "discovery" {
		t.Fatalf("expected enriched discoveries, got %+v", got.Discoveries[0])
	}
}

func TestDashboardAllHealthyHasNoErrors(t *testing.T) {
	got := newTestService(&fakeStore{}, &fakeSearch{}).Dashboard(context.Background())
	if got.Errors == nil || len(got.Errors) != 0 {
		t.Fatalf("expected empty error map, got %v", got.Errors)
	}
	encoded, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"customers":[]`) {
		t.Fatalf("expected empty arrays rather than null, got %s", encoded)
	}
}

func TestSignalsByWindowPassesLowerBound(t *testing.T) {
	var gotSince *time.Time
	fs := &fakeStore{listNewsLeadsWithStatusFn: func(_ context.Context, since *time.Time) ([]store.NewsLeadRow, error) {
		gotSince = since
		return []store.NewsLeadRow{}, nil
	}}
	svc := newTestService(fs, &fakeSearch{})

	if _, err := svc.SignalsByWindow(context.Background(), "today"); err != nil {
		t.Fatalf("signals: %v", err)
	}
	if gotSince == nil || !gotSince.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected lower bound %v", gotSince)
	}

	if _, err := svc.SignalsByWindow(context.Background(), "all_time"); err != nil || gotSince != nil {
		t.Fatalf("expected no bound for all time, got %v err=%v", gotSince, err)
	}

	_, err := svc.SignalsByWindow(context.Background(), "yesterday")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
		t.Fatalf("expected bad request domain error, got %v", err)
	}
}

func TestSignalsByWindowTodayUsesClockLocation(t *testing.T) {
	zone := time.FixedZone("PST", -8*60*60)
	var gotSince *time.Time
	fs := &fakeStore{listNewsLeadsWithStatusFn: func(_ context.Context, since *time.Time) ([]store.NewsLeadRow, error) {
		gotSince = since
		return []store.NewsLeadRow{}, nil
	}}
	svc := newTestService(fs, &fakeSearch{})
	// 20:00 local on the 9th is already the 10th in UTC.
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 20, 0, 0, 0, zone) }

	if _, err := svc.SignalsByWindow(context.Background(), "today"); err != nil {
		t.Fatalf("signals: %v", err)
	}
	if gotSince == nil || !gotSince.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, zone)) {
		t.Fatalf("expected local midnight, got %v", gotSince)
	}
}

func TestSignalsByWindowPropagatesStoreError(t *testing.T) {
	fs := &fakeStore{listNewsLeadsWithStatusFn: func(context.Context, *time.Time) ([]store.NewsLeadRow, error) {
		return nil, storeErr("news_leads")
	}}
	_, err := newTestService(fs, &fakeSearch{}).SignalsByWindow(context.Background(), "")
	if store.EntityOf(err) != "news_leads" || !strings.HasPrefix(err.Error(), "fetch signals") {
		t.Fatalf("expected entity-tagged error, got %v", err)
	}
}

func queueRows() []store.ResearchQueueEntry {
	x1, x2 := "x1", "x2"
	return []store.ResearchQueueEntry{
		{ID: "rB", NewsLeadID: &x2, CompanyName: "Beta", ResearchStatus: "queued", AddedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
		{ID: "rA", NewsLeadID: &x1, CompanyName: "Beta", ResearchStatus: "queued", AddedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestResearchQueueGroupsAndResolvesLogos(t *testing.T) {
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		listSignalLogosFn: func(_ context.Context, ids []string) (map[string]string, error) {
			return map[string]string{"x2": "beta.png"}, nil
		},
	}
	items, err := newTestService(fs, &fakeSearch{}).ResearchQueue(context.Background())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(items) != 1 || items[0].LogoURL == nil || *items[0].LogoURL != "beta.png" {
		t.Fatalf("unexpected queue %+v", items)
	}
}

func TestResearchDetailReconcilesAsSeparateStep(t *testing.T) {
	var updates []string
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		findDeepResearchFn: func(_ context.Context, name string) (*store.DeepResearch, error) {
			return &store.DeepResearch{ID: "dr1", CompanyName: "Beta GmbH"}, nil
		},
		updateResearchStatusFn: func(_ context.Context, entryID, status string) (bool, error) {
			updates = append(updates, entryID+":"+status)
			return true, nil
		},
	}

	detail, err := newTestService(fs, &fakeSearch{}).ResearchDetail(context.Background(), "Beta")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Research == nil || !detail.Reconciled || detail.QueueItem.CompositeStatus != "completed" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if len(updates) != 1 || updates[0] != "rB:completed" {
		t.Fatalf("expected seed entry marked completed, got %v", updates)
	}
}

func TestResearchDetailSurvivesReconcileFailure(t *testing.T) {
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		findDeepResearchFn: func(context.Context, string) (*store.DeepResearch, error) {
			return &store.DeepResearch{ID: "dr1", CompanyName: "Beta"}, nil
		},
		updateResearchStatusFn: func(context.Context, string, string) (bool, error) {
			return false, errors.New("write failed")
		},
	}
	detail, err := newTestService(fs, &fakeSearch{}).ResearchDetail(context.Background(), "Beta")
	if err != nil {
		t.Fatalf("expected read to succeed, got %v", err)
	}
	if detail.Reconciled || detail.QueueItem.CompositeStatus != "queued" {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestResearchDetailWithoutResearchDoesNotWrite(t *testing.T) {
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		updateResearchStatusFn: func(context.Context, string, string) (bool, error) {
			t.Fatal("no write expected without research")
			return false, nil
		},
	}
	detail, err := newTestService(fs, &fakeSearch{}).ResearchDetail(context.Background(), "Beta")
	if err != nil || detail.Research != nil || detail.QueueItem == nil {
		t.Fatalf("unexpected detail %+v err=%v", detail, err)
	}
}

func TestReconcileQueue(t *testing.T) {
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		findDeepResearchFn: func(context.Context, string) (*store.DeepResearch, error) {
			return &store.DeepResearch{ID: "dr1", CompanyName: "Beta"}, nil
		},
	}
	updated, err := newTestService(fs, &fakeSearch{}).ReconcileQueue(context.Background())
	if err != nil || updated != 1 {
		t.Fatalf("expected one reconciled entry, got %d err=%v", updated, err)
	}
}

func TestPromoteToProspectIndexesForSearch(t *testing.T) {
	fsearch := &fakeSearch{}
	logo := "acme.png"
	created, err := newTestService(&fakeStore{}, fsearch).PromoteToProspect(context.Background(), "Acme", &logo)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if created.CompanyName != "Acme" || created.Metadata["source"] != "research_queue" {
		t.Fatalf("unexpected prospect %+v", created)
	}
	if len(fsearch.indexed) != 1 {
		t.Fatalf("expected one indexed prospect, got %+v", fsearch.indexed)
	}
	got := fsearch.indexed[0]
	if got.ID != created.ID || got.CompanyName != "Acme" || got.Type != search.ResultProspect || got.LogoURL == nil || *got.LogoURL != logo {
		t.Fatalf("unexpected indexed record %+v", got)
	}
}

func TestPromoteGroupToProspectRequiresQueuedCompany(t *testing.T) {
	_, err := newTestService(&fakeStore{}, &fakeSearch{}).PromoteGroupToProspect(context.Background(), "Nobody")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected not-queued error, got %v", err)
	}
}

func TestPromoteGroupToProspectMovesLinkedSignals(t *testing.T) {
	var stages []string
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		upsertLeadStatusFn: func(_ context.Context, signalID, stage string) error {
			stages = append(stages, signalID+":"+stage)
			return nil
		},
	}
	fsearch := &fakeSearch{}
	result, err := newTestService(fs, fsearch).PromoteGroupToProspect(context.Background(), "Beta")
	if err != nil {
		t.Fatalf("promote group: %v", err)
	}
	if !result.Created || len(stages) != 2 || stages[0] != "x2:prospect" || stages[1] != "x1:prospect" {
		t.Fatalf("unexpected promotion %+v stages=%v", result, stages)
	}
	if len(fsearch.indexed) != 1 || fsearch.indexed[0].ID != result.Prospect.ID || fsearch.indexed[0].CompanyName != "Beta" {
		t.Fatalf("expected created prospect indexed, got %+v", fsearch.indexed)
	}
}

func TestPromoteGroupToProspectExistingSkipsIndex(t *testing.T) {
	fs := &fakeStore{
		listResearchQueueFn: func(context.Context) ([]store.ResearchQueueEntry, error) { return queueRows(), nil },
		isProspectFn:        func(context.Context, string) (bool, error) { return true, nil },
	}
	fsearch := &fakeSearch{}
	result, err := newTestService(fs, fsearch).PromoteGroupToProspect(context.Background(), "Beta")
	if err != nil {
		t.Fatalf("promote group: %v", err)
	}
	if result.Created || len(fsearch.indexed) != 0 {
		t.Fatalf("expected no new prospect and no index write, got %+v indexed=%+v", result, fsearch.indexed)
	}
}

func TestUpdateProspectMetadataMergesAndStamps(t *testing.T) {
	var written map[string]any
	fs := &fakeStore{
		getProspectFn: func(_ context.Context, id string) (store.Prospect, error) {
			return store.Prospect{ID: id, Metadata: map[string]any{"source": "research_queue", "stage": "intro"}}, nil
		},
		updateProspectMetadataFn: func(_ context.Context, _ string, metadata map[string]any) (bool, error) {
			written = metadata
			return true, nil
		},
	}
	ok, err := newTestService(fs, &fakeSearch{}).UpdateProspectMetadata(context.Background(), "p1", map[string]any{"stage": "demo", "owner": "kim"})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if written["source"] != "research_queue" || written["stage"] != "demo" || written["owner"] != "kim" {
		t.Fatalf("unexpected merge %v", written)
	}
	if written["updated_at"] != "2024-03-10T12:00:00Z" {
		t.Fatalf("expected updated_at stamp, got %v", written["updated_at"])
	}
}

func TestUpdateProspectMetadataMissingProspect(t *testing.T) {
	fs := &fakeStore{getProspectFn: func(context.Context, string) (store.Prospect, error) {
		return store.Prospect{}, &store.EntityError{Entity: "prospects", Err: sql.ErrNoRows}
	}}
	_, err := newTestService(fs, &fakeSearch{}).UpdateProspectMetadata(context.Background(), "missing", nil)
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 mapping, got %d (%v)", status, err)
	}
}

func TestMapErrorValidation(t *testing.T) {
	_, err := newTestService(&fakeStore{}, &fakeSearch{}).SetResearchStatus(context.Background(), "rq1", "done")
	status, code, _, _ := mapError(err)
	if status != http.StatusBadRequest || code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation mapping, got %d %s", status, code)
	}

	status, _, _, details := mapError(storeErr("customers"))
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if d, ok := details.(map[string]any); !ok || d["entity"] != "customers" {
		t.Fatalf("expected entity details, got %v", details)
	}
}
