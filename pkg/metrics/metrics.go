// Package metrics registers Prometheus instrumentation for the sync
// pipeline. Init must be called once before any Record helper.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "hydroqc_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	syncCycles     *prometheus.CounterVec
	reconcileOps   *prometheus.CounterVec
	feedFetches    *prometheus.CounterVec
	announcedPeaks *prometheus.GaugeVec
)

// Init registers the metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		syncCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_cycles_total",
				Help: "Total calendar sync cycles by variant and result",
			},
			[]string{"variant", "result"},
		)
		reconcileOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_operations_total",
				Help: "Total calendar record mutations by variant and operation",
			},
			[]string{"variant", "operation"},
		)
		feedFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_fetches_total",
				Help: "Total announcement feed fetches by variant and result",
			},
			[]string{"variant", "result"},
		)
		announcedPeaks = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "announced_critical_peaks",
				Help: "Critical peaks currently known from the feed by variant",
			},
			[]string{"variant"},
		)

		prometheus.MustRegister(syncCycles, reconcileOps, feedFetches, announcedPeaks)
	})
}

// RecordSyncCycle counts one completed sync cycle.
func RecordSyncCycle(variant, result string) {
	if syncCycles == nil {
		return
	}
	syncCycles.WithLabelValues(variant, result).Inc()
}

// RecordReconcileOps counts record mutations from one reconcile pass.
func RecordReconcileOps(variant string, created, updated, deleted int) {
	if reconcileOps == nil {
		return
	}
	reconcileOps.WithLabelValues(variant, "created").Add(float64(created))
	reconcileOps.WithLabelValues(variant, "updated").Add(float64(updated))
	reconcileOps.WithLabelValues(variant, "deleted").Add(float64(deleted))
}

// RecordFeedFetch counts one announcement feed fetch.
func RecordFeedFetch(variant, result string) {
	if feedFetches == nil {
		return
	}
	feedFetches.WithLabelValues(variant, result).Inc()
}

// SetAnnouncedPeaks records how many critical peaks the feed currently
// announces for a variant.
func SetAnnouncedPeaks(variant string, count int) {
	if announcedPeaks == nil {
		return
	}
	announcedPeaks.WithLabelValues(variant).Set(float64(count))
}
