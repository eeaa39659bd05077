// Package metrics registers the Prometheus collectors for the pipeline
// counters. One Metrics value is created at startup and threaded through
// the components that record into it; components that keep their own
// counters are bridged with CounterFunc and GaugeFunc collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/classify"
)

// Metrics bundles every collector on one registry.
type Metrics struct {
	Registry *prometheus.Registry
	factory  promauto.Factory

	SignalsIngested    *prometheus.CounterVec // source
	SignalsDropped     prometheus.Counter
	SignalsRateLimited prometheus.Counter

	DecisionsByRule *prometheus.CounterVec // rule

	DispatchOutcomes *prometheus.CounterVec // platform, outcome
	DispatchRetries  prometheus.Counter
	DispatchLatency  *prometheus.HistogramVec // platform

	ReviewResolutions *prometheus.CounterVec // status

	PipelineLatency prometheus.Histogram
	FeedbackRecords *prometheus.CounterVec // outcome
}

// New builds the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		factory:  factory,

		SignalsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opscenter_signals_ingested_total",
			Help: "Signals admitted to the ingest queue by source.",
		}, []string{"source"}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "opscenter_signals_dropped_total",
			Help: "Signals dropped at ingress due to queue overflow.",
		}),
		SignalsRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "opscenter_signals_rate_limited_total",
			Help: "Signals rejected by the ingest rate limiter.",
		}),

		DecisionsByRule: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opscenter_decisions_total",
			Help: "Decisions by cascade rule.",
		}, []string{"rule"}),

		DispatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opscenter_dispatch_outcomes_total",
			Help: "Dispatch outcomes by platform and outcome.",
		}, []string{"platform", "outcome"}),
		DispatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "opscenter_dispatch_retries_total",
			Help: "Executor retry attempts.",
		}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opscenter_dispatch_duration_seconds",
			Help:    "Executor call duration by platform.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),

		ReviewResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opscenter_review_resolutions_total",
			Help: "Review queue resolutions by status.",
		}, []string{"status"}),

		PipelineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "opscenter_pipeline_duration_seconds",
			Help:    "End-to-end signal processing duration.",
			Buckets: prometheus.DefBuckets,
		}),
		FeedbackRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opscenter_feedback_records_total",
			Help: "Feedback records by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveClassifier bridges the classifier's own counters onto the
// registry. Call once after the classifier is built.
func (m *Metrics) ObserveClassifier(stats func() classify.ClassifierStats) {
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_oracle_calls_total",
		Help: "Oracle invocations.",
	}, func() float64 { return float64(stats().OracleCalls) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_oracle_transport_retries_total",
		Help: "Oracle calls retried after a transport error.",
	}, func() float64 { return float64(stats().OracleRetries) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_oracle_parse_retries_total",
		Help: "Oracle responses that needed a stricter retry.",
	}, func() float64 { return float64(stats().ParseRetries) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_oracle_failures_total",
		Help: "Oracle calls that fell back to the default classification.",
	}, func() float64 { return float64(stats().ParseFailures) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_classification_cache_hits_total",
		Help: "Classification cache hits.",
	}, func() float64 { return float64(stats().Cache.Hits) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "opscenter_classification_cache_misses_total",
		Help: "Classification cache misses.",
	}, func() float64 { return float64(stats().Cache.Misses) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "opscenter_classification_cache_size",
		Help: "Entries in the classification cache.",
	}, func() float64 { return float64(stats().Cache.Size) })
}

// ObserveDepths bridges the live queue depths onto the registry. Nil
// hooks are skipped.
func (m *Metrics) ObserveDepths(queue, bus, pendingReviews func() int) {
	gauge := func(name, help string, f func() int) {
		if f == nil {
			return
		}
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(f()) })
	}
	gauge("opscenter_ingest_queue_depth", "Signals waiting in the ingest queue.", queue)
	gauge("opscenter_bus_queue_depth", "Events waiting in the bus priority queues.", bus)
	gauge("opscenter_review_pending", "Review items awaiting a decision.", pendingReviews)
}
