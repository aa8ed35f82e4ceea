package hypothesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricInsightsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "insights_recorded_total",
		Help:      "Insights buffered per discovery type.",
	}, []string{"type"})

	metricInsightsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "insights_dropped_total",
		Help:      "Insights dropped before buffering.",
	}, []string{"reason"})

	metricTrailFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "trail_flushes_total",
		Help:      "Trail-end outcomes.",
	}, []string{"result"})

	metricHypothesesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "hypotheses_created_total",
		Help:      "New hypotheses persisted.",
	})

	metricEvidenceMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "evidence_merged_total",
		Help:      "Drafts merged into existing hypotheses.",
	})

	metricDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "duplicates_dropped_total",
		Help:      "Drafts dropped because their observation already existed.",
	})

	metricLifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "bank",
		Name:      "lifecycle_transitions_total",
		Help:      "Hypothesis status transitions.",
	}, []string{"from", "to"})

	metricHUDRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimbank",
		Subsystem: "hud",
		Name:      "requests_total",
		Help:      "HUD retrievals by outcome.",
	}, []string{"result"})

	metricHUDLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "claimbank",
		Subsystem: "hud",
		Name:      "latency_seconds",
		Help:      "HUD retrieval latency.",
		Buckets:   prometheus.DefBuckets,
	})
)
