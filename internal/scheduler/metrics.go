package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lgoap",
		Subsystem: "scheduler",
		Name:      "frame_duration_seconds",
		Help:      "Time spent ticking every agent once",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	agentErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "scheduler",
		Name:      "agent_errors_total",
		Help:      "Agent ticks that returned an error or panicked",
	})

	syncedApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "scheduler",
		Name:      "synced_updates_applied_total",
		Help:      "Remote instance-synced writes applied to local instances",
	})

	// planSaves counts plan record writes to Redis.
	// Labels: outcome (success, error)
	planSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "scheduler",
		Name:      "plan_saves_total",
		Help:      "Plan record writes by outcome",
	}, []string{"outcome"})

	agentsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lgoap",
		Subsystem: "scheduler",
		Name:      "agents",
		Help:      "Agents ticked by the scheduler",
	})
)
