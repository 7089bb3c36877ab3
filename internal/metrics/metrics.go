// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	PipelineWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadboard_pipeline_writes_total",
		Help: "Pipeline transition sub-writes by transition, step and result",
	}, []string{"transition", "step", "result"})

	DegradedCollections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadboard_degraded_collections_total",
		Help: "Collections returned empty because their fetch failed",
	}, []string{"collection"})

	SearchSourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadboard_search_source_failures_total",
		Help: "Federated search sub-queries that failed and were treated as empty",
	}, []string{"source"})

	ContactMigrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadboard_contact_migrations_total",
		Help: "Lazy legacy contact migrations by result",
	}, []string{"result"})

	ReconciledEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadboard_reconciled_queue_entries_total",
		Help: "Research queue entries moved to completed by reconciliation",
	})
)
