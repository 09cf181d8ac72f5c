package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passDuration measures one planning pass from dispatch to completion.
	// Labels: mode (sync, async)
	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lgoap",
		Subsystem: "planner",
		Name:      "pass_duration_seconds",
		Help:      "Duration of planning passes in seconds",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"mode"})

	// layerResults counts per-layer outcomes.
	// Labels: result (not_required, unchanged, new_plan), source (search, replay, fallback, target)
	layerResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "planner",
		Name:      "layer_results_total",
		Help:      "Planned layers by result and how the result was reached",
	}, []string{"result", "source"})

	searchNodes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "planner",
		Name:      "search_nodes_total",
		Help:      "Nodes expanded by the iterative-deepening search",
	})

	// commitFallbacks counts commits whose first action no longer held on the live blackboard.
	commitFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "planner",
		Name:      "commit_fallbacks_total",
		Help:      "Commits that cascaded to fallback plans",
	})

	coalescedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lgoap",
		Subsystem: "planner",
		Name:      "coalesced_requests_total",
		Help:      "Planning requests merged into a pending or running pass",
	})
)
