// Package pipeline moves companies through discovery, research and prospect.
// Transitions that touch more than one table run each write independently and
// report every outcome; nothing is rolled back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadboard/api/internal/logger"
	"leadboard/api/internal/metrics"
	"leadboard/api/internal/queue"
	"leadboard/api/internal/store"
	"leadboard/api/internal/util"
)

var (
	ErrEmptyCompany          = errors.New("company name is required")
	ErrEmptySignal           = errors.New("signal id is required")
	ErrInvalidResearchStatus = errors.New("research status must be queued or completed")
)

const (
	StepLeadStatus    = "lead_status"
	StepResearchQueue = "research_queue"
)

type Store interface {
	GetNewsLeadWithStatus(ctx context.Context, signalID string) (store.NewsLeadRow, error)
	UpsertLeadStatus(ctx context.Context, signalID, stage string) error
	UpsertResearchQueueEntry(ctx context.Context, entry store.ResearchQueueEntry) error
	UpdateResearchStatus(ctx context.Context, entryID, status string) (bool, error)
	DeleteResearchQueueEntry(ctx context.Context, entryID string) (bool, error)
	IsProspect(ctx context.Context, companyName string) (bool, error)
	InsertProspect(ctx context.Context, item store.Prospect) error
	FindDeepResearch(ctx context.Context, name string) (*store.DeepResearch, error)
}

// StepResult is the outcome of one sub-write of a transition.
type StepResult struct {
	Step     string `json:"step"`
	SignalID string `json:"signal_id,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

type Transition struct {
	Steps []StepResult `json:"steps"`
}

// AllOK reports whether every sub-write landed.
func (t Transition) AllOK() bool {
	if len(t.Steps) == 0 {
		return false
	}
	for _, step := range t.Steps {
		if !step.OK {
			return false
		}
	}
	return true
}

// AnyOK reports whether at least one sub-write landed.
func (t Transition) AnyOK() bool {
	for _, step := range t.Steps {
		if step.OK {
			return true
		}
	}
	return false
}

type Machine struct {
	store  Store
	logger *zap.Logger
	source string
	now    func() time.Time
}

// New builds a Machine. source tags the metadata of every prospect it creates.
func New(st Store, log *zap.Logger, source string) *Machine {
	if strings.TrimSpace(source) == "" {
		source = "research_queue"
	}
	return &Machine{
		store:  st,
		logger: logger.OrNop(log),
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PromoteToResearch marks the signal as in research and queues its company.
// Both writes are upserts keyed on the signal, so repeating the call is safe.
// It fails only when the signal cannot be loaded or both writes fail.
func (m *Machine) PromoteToResearch(ctx context.Context, signalID string) (Transition, error) {
	signalID = strings.TrimSpace(signalID)
	if signalID == "" {
		return Transition{}, ErrEmptySignal
	}

	signal, err := m.store.GetNewsLeadWithStatus(ctx, signalID)
	if err != nil {
		return Transition{}, fmt.Errorf("promote to research: %w", err)
	}
	company := signal.CompanyName

	var result Transition
	var errs []error

	statusErr := m.store.UpsertLeadStatus(ctx, signalID, store.StageResearch)
	result.Steps = append(result.Steps, m.record("promote_to_research", StepLeadStatus, signalID, company, statusErr))
	if statusErr != nil {
		errs = append(errs, statusErr)
	}

	queueErr := m.store.UpsertResearchQueueEntry(ctx, store.ResearchQueueEntry{
		ID:             util.NewID("rq"),
		NewsLeadID:     &signalID,
		CompanyName:    company,
		ResearchStatus: store.ResearchQueued,
	})
	result.Steps = append(result.Steps, m.record("promote_to_research", StepResearchQueue, signalID, company, queueErr))
	if queueErr != nil {
		errs = append(errs, queueErr)
	}

	if !result.AnyOK() {
		return result, fmt.Errorf("promote to research: %w", errors.Join(errs...))
	}
	return result, nil
}

func (m *Machine) SetResearchStatus(ctx context.Context, entryID, status string) (bool, error) {
	if status != store.ResearchQueued && status != store.ResearchCompleted {
		return false, ErrInvalidResearchStatus
	}
	ok, err := m.store.UpdateResearchStatus(ctx, entryID, status)
	if err != nil {
		return false, fmt.Errorf("set research status: %w", err)
	}
	return ok, nil
}

// RemoveFromResearch hard-deletes one queue entry. Callers holding a grouped
// view must refresh it.
func (m *Machine) RemoveFromResearch(ctx context.Context, entryID string) (bool, error) {
	ok, err := m.store.DeleteResearchQueueEntry(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("remove from research: %w", err)
	}
	return ok, nil
}

func (m *Machine) IsProspect(ctx context.Context, companyName string) (bool, error) {
	if strings.TrimSpace(companyName) == "" {
		return false, ErrEmptyCompany
	}
	exists, err := m.store.IsProspect(ctx, companyName)
	if err != nil {
		return false, fmt.Errorf("check prospect: %w", err)
	}
	return exists, nil
}

// PromoteToProspect inserts a new prospect row. It does not check for an
// existing one; call IsProspect first.
func (m *Machine) PromoteToProspect(ctx context.Context, companyName string, logoURL *string) (store.Prospect, error) {
	if strings.TrimSpace(companyName) == "" {
		return store.Prospect{}, ErrEmptyCompany
	}
	now := m.now()
	item := store.Prospect{
		ID:          util.NewID("prs"),
		CompanyName: companyName,
		LogoURL:     logoURL,
		Metadata: map[string]any{
			"source":     m.source,
			"created_at": now.Format(time.RFC3339),
		},
		Leads:     []map[string]any{},
		Outreach:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.InsertProspect(ctx, item); err != nil {
		m.logger.Error("prospect insert failed", zap.String("company", companyName), zap.Error(err))
		return store.Prospect{}, fmt.Errorf("promote to prospect: %w", err)
	}
	m.logger.Info("company promoted to prospect", zap.String("company", companyName), zap.String("prospect_id", item.ID))
	return item, nil
}

// FindDeepResearch returns the first research record whose company name
// contains name, ignoring case, or nil. Several companies can match.
func (m *Machine) FindDeepResearch(ctx context.Context, name string) (*store.DeepResearch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyCompany
	}
	research, err := m.store.FindDeepResearch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find deep research: %w", err)
	}
	return research, nil
}

type Reconciliation struct {
	Research *store.DeepResearch `json:"research"`
	Updated  bool                `json:"updated"`
}

// ReconcileResearchStatus marks the group's seed entry completed when deep
// research exists for its company and the group is not completed yet.
func (m *Machine) ReconcileResearchStatus(ctx context.Context, item queue.Item) (Reconciliation, error) {
	research, err := m.FindDeepResearch(ctx, item.CompanyName)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile research status: %w", err)
	}
	return m.reconcileWith(ctx, item, research)
}

// ReconcileKnown is ReconcileResearchStatus for a caller that already holds
// the research lookup result.
func (m *Machine) ReconcileKnown(ctx context.Context, item queue.Item, research *store.DeepResearch) (Reconciliation, error) {
	return m.reconcileWith(ctx, item, research)
}

func (m *Machine) reconcileWith(ctx context.Context, item queue.Item, research *store.DeepResearch) (Reconciliation, error) {
	out := Reconciliation{Research: research}
	if research == nil || item.Completed() {
		return out, nil
	}

	ok, err := m.store.UpdateResearchStatus(ctx, item.ID, store.ResearchCompleted)
	if err != nil {
		return out, fmt.Errorf("reconcile research status: %w", err)
	}
	if ok {
		metrics.ReconciledEntries.Inc()
		m.logger.Info("research marked completed",
			zap.String("company", item.CompanyName),
			zap.String("entry_id", item.ID),
			zap.String("deep_research_id", research.ID),
		)
	}
	out.Updated = ok
	return out, nil
}

// ReconcileAll reconciles every item, continuing past failures. It returns
// how many entries moved to completed.
func (m *Machine) ReconcileAll(ctx context.Context, items []queue.Item) (int, error) {
	updated := 0
	var errs []error
	for _, item := range items {
		if item.Completed() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := m.ReconcileResearchStatus(ctx, item)
		if err != nil {
			m.logger.Warn("reconcile failed", zap.String("company", item.CompanyName), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if result.Updated {
			updated++
		}
	}
	return updated, errors.Join(errs...)
}

type GroupPromotion struct {
	Prospect *store.Prospect `json:"prospect,omitempty"`
	Created  bool            `json:"created"`
	Steps    []StepResult    `json:"steps"`
}

// PromoteGroupToProspect creates the prospect for a queued company unless one
// already exists, then moves every linked signal to the prospect stage. The
// stage writes are best effort.
func (m *Machine) PromoteGroupToProspect(ctx context.Context, item queue.Item) (GroupPromotion, error) {
	exists, err := m.IsProspect(ctx, item.CompanyName)
	if err != nil {
		return GroupPromotion{}, err
	}

	out := GroupPromotion{Steps: []StepResult{}}
	if !exists {
		created, err := m.PromoteToProspect(ctx, item.CompanyName, item.LogoURL)
		if err != nil {
			return GroupPromotion{}, err
		}
		out.Prospect = &created
		out.Created = true
	}

	for _, signalID := range item.SignalIDs {
		err := m.store.UpsertLeadStatus(ctx, signalID, store.StageProspect)
		out.Steps = append(out.Steps, m.record("promote_to_prospect", StepLeadStatus, signalID, item.CompanyName, err))
	}
	return out, nil
}

func (m *Machine) record(transition, step, signalID, company string, err error) StepResult {
	fields := []zap.Field{
		zap.String("signal_id", signalID),
		zap.String("company", company),
		zap.String("step", step),
	}
	if err != nil {
		metrics.PipelineWrites.WithLabelValues(transition, step, metrics.ResultFailed).Inc()
		m.logger.Warn(transition+" write failed", append(fields, zap.Error(err))...)
		return StepResult{Step: step, SignalID: signalID, OK: false, Error: err.Error()}
	}
	metrics.PipelineWrites.WithLabelValues(transition, step, metrics.ResultOK).Inc()
	m.logger.Info(transition+" write applied", fields...)
	return StepResult{Step: step, SignalID: signalID, OK: true}
}
