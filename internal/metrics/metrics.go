// Package metrics holds Prometheus instruments used across vidcat.  All
// collectors are registered with the global registry, so importing this
// package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vidcat"

var (
	StoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_ops_total",
			Help:      "Document store operations by collection, op, and outcome.",
		}, []string{"collection", "op", "outcome"})

	StoreOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_seconds",
			Help:      "Document store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"collection", "op"})

	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Adapter lookups by query shape.",
		}, []string{"shape"})

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Data layer errors by kind.",
		}, []string{"kind"})

	VisitsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_recorded_total",
			Help:      "Visits written by the capture middleware.",
		})

	VisitsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_skipped_total",
			Help:      "Visits not written, by reason.",
		}, []string{"reason"})

	StoreUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the last health probe reached the store.",
		})
)

func init() {
	prometheus.MustRegister(
		StoreOpsTotal,
		StoreOpSeconds,
		LookupsTotal,
		ErrorsTotal,
		VisitsRecordedTotal,
		VisitsSkippedTotal,
		StoreUp,
	)
}
