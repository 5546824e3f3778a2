// Package metrics provides Prometheus instrumentation for SlopOverlord.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker Scheduler metrics.
var (
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slopoverlord_active_workers",
		Help: "Number of workers currently queued, running, or waiting_input.",
	})

	WorkerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slopoverlord_worker_transitions_total",
		Help: "Total number of worker status transitions.",
	}, []string{"to_status"})
)

// Agent Session Engine metrics.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slopoverlord_active_sessions",
		Help: "Number of agent sessions currently held in memory.",
	})

	StreamSubscribersDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slopoverlord_stream_subscribers_dropped_total",
		Help: "Total number of stream subscribers dropped for lagging behind.",
	})
)

// Route Decider metrics.
var (
	RouteDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slopoverlord_route_decisions_total",
		Help: "Total number of route decisions made, by action.",
	}, []string{"action"})
)

// Compactor metrics.
var (
	CompactionThresholdCrossingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slopoverlord_compaction_threshold_crossings_total",
		Help: "Total number of contextUtilization threshold crossings observed, by level.",
	}, []string{"level"})

	ChannelsQuarantined = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slopoverlord_channels_quarantined",
		Help: "Number of channels currently quarantined under channel_overloaded.",
	})
)

// Tool Authorization metrics.
var (
	ToolAuthorizationDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slopoverlord_tool_authorization_denied_total",
		Help: "Total number of tool authorization checks that denied a call, by reason.",
	}, []string{"reason"})
)
