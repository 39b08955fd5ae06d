// Package metrics defines the Prometheus collectors for the insight
// pipeline. Collectors are package-level and registered once on the
// default registry; the HTTP layer exposes them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission

	JobsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "api",
		Name:      "jobs_admitted_total",
		Help:      "Total insight jobs accepted for processing.",
	})

	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "api",
		Name:      "jobs_rejected_total",
		Help:      "Total insight job requests rejected, labelled by reason.",
	}, []string{"reason"})

	// Worker

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Total jobs driven to a terminal state, labelled by status.",
	}, []string{"status"})

	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "worker",
		Name:      "retries_total",
		Help:      "Total failed attempts handed back to the queue for retry.",
	})

	Failovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "worker",
		Name:      "failovers_total",
		Help:      "Total jobs completed from a single engine after the other failed.",
	})

	DeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "worker",
		Name:      "dead_letters_total",
		Help:      "Total tasks parked after exhausting their retry budget.",
	})

	// Engines

	EngineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insight",
		Subsystem: "engine",
		Name:      "latency_seconds",
		Help:      "Completion latency per engine invocation.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"engine_id"})
)
