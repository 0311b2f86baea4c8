// Package metrics holds Prometheus instruments that are used across the
// CRM.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_transitions_total",
			Help: "Committed status transitions by target status.",
		}, []string{"status"})

	MutationRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_mutation_rollbacks_total",
			Help: "Optimistic list mutations rolled back after a failed write.",
		})

	ListRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_list_refresh_total",
			Help: "Request-list reloads by outcome (ok, error, stale).",
		}, []string{"outcome"})

	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_batch_items_total",
			Help: "Archive batch items by operation and outcome.",
		}, []string{"op", "outcome"})

	PendingInteractions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_pending_interactions",
			Help: "Board drops waiting for auxiliary data.",
		})

	NotifyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_notify_failures_total",
			Help: "Trial-assignment notifications that failed to send.",
		})

	InquiriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inquiries_total",
			Help: "Public trial submissions by outcome (created, rejected, bot).",
		}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		TransitionsTotal,
		MutationRollbacksTotal,
		ListRefreshTotal,
		BatchItemsTotal,
		PendingInteractions,
		NotifyFailuresTotal,
		InquiriesTotal,
	)
}
