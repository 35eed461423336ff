// Package metrics provides Prometheus metrics collection for tokengate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for tokengate.
type Collector struct {
	// Admission metrics
	AdmissionChecks  *prometheus.CounterVec // outcome: allowed|denied|error
	AdmissionLatency prometheus.Histogram

	// Usage accounting metrics
	TokensRecorded    *prometheus.CounterVec // by model
	RecordingFailures prometheus.Counter

	// Upstream metrics
	UpstreamDuration prometheus.Histogram
	UpstreamErrors   prometheus.Counter

	// Retention metrics
	SweepDeleted prometheus.Counter
	SweepErrors  prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered on the given registry.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		AdmissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "admission_checks_total",
				Help:      "Admission checks by outcome",
			},
			[]string{"outcome"},
		),
		AdmissionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokengate",
				Name:      "admission_check_duration_seconds",
				Help:      "Latency of ledger-backed admission checks",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		TokensRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "tokens_recorded_total",
				Help:      "Tokens written to the usage ledger",
			},
			[]string{"model"},
		),
		RecordingFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "recording_failures_total",
				Help:      "Usage records that could not be persisted",
			},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokengate",
				Name:      "upstream_duration_seconds",
				Help:      "Upstream model call duration",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		UpstreamErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "upstream_errors_total",
				Help:      "Failed upstream model calls",
			},
		),
		SweepDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "sweep_deleted_total",
				Help:      "Ledger records removed by the retention sweeper",
			},
		),
		SweepErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokengate",
				Name:      "sweep_errors_total",
				Help:      "Retention sweep runs that failed",
			},
		),
	}
}
