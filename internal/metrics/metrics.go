// Package metrics exposes the engine's Prometheus instrumentation. Counters
// are registered with the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsFetched counts acquired rate snapshots per source id,
	// including the offline fallback.
	SnapshotsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_snapshots_fetched_total",
			Help: "Total rate snapshots acquired, by source",
		},
		[]string{"source"},
	)

	// CyclesTotal counts completed evaluation cycles.
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_cycles_total",
			Help: "Total completed aggregation-evaluate-dispatch cycles",
		},
	)

	// NotificationsSent counts successful push deliveries.
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_notifications_sent_total",
			Help: "Total successful push notification deliveries",
		},
	)

	// NotificationsFailed counts failed push deliveries of any kind.
	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_notifications_failed_total",
			Help: "Total failed push notification deliveries",
		},
	)

	// EndpointsPruned counts subscriptions removed after permanent
	// delivery failures.
	EndpointsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_endpoints_pruned_total",
			Help: "Total subscriptions removed as permanently gone",
		},
	)

	// AlertsFired counts user price alerts that transitioned to triggered.
	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_price_alerts_fired_total",
			Help: "Total user price alerts fired",
		},
	)

	// PairRate publishes the latest derived rate per pair.
	PairRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxwatcher_pair_rate",
			Help: "Latest derived rate per currency pair",
		},
		[]string{"pair"},
	)
)
