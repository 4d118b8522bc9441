// Package metrics holds Prometheus instruments used across the sync
// subsystem.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SyncAttemptsTotal counts finished card-sync attempts.
	// Labels: operation (create/update/comment), outcome (completed/failed/
	// failed_permanently).
	SyncAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_sync_attempts_total",
			Help: "Card synchronization attempts by operation and outcome.",
		}, []string{"operation", "outcome"})

	// SyncRejectedTotal counts attempts stopped before any ledger write.
	// Label reason: not_found, configuration, already_synced, claimed,
	// no_card, invalid.
	SyncRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_sync_rejected_total",
			Help: "Card synchronization calls rejected before reaching the ledger.",
		}, []string{"reason"})

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trello_request_duration_seconds",
			Help:    "Latency of task-board provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"})

	SweepEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_sweep_entries_total",
			Help: "Ledger entries handled by the retry sweeper, by result.",
		}, []string{"result"})

	SweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_sweep_runs_total",
			Help: "Cumulative number of sweeper passes.",
		})

	BoardProvisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_provision_total",
			Help: "Board provisioning runs by result (created/skipped/failed).",
		}, []string{"result"})

	ActivityWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_write_errors_total",
			Help: "Audit activity rows that could not be written.",
		})
)

func init() {
	prometheus.MustRegister(
		SyncAttemptsTotal,
		SyncRejectedTotal,
		ProviderRequestDuration,
		SweepEntriesTotal,
		SweepRunsTotal,
		BoardProvisionTotal,
		ActivityWriteErrorsTotal,
	)
}
