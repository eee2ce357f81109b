// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts finished sync cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bili_sync",
		Name:      "cycles_total",
		Help:      "Finished sync cycles by outcome.",
	}, []string{"outcome"})

	// VideosRefreshed counts new video rows discovered during refresh.
	VideosRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bili_sync",
		Name:      "videos_refreshed_total",
		Help:      "New video rows discovered during refresh.",
	})

	// VideosCompleted counts videos whose status reached completion.
	VideosCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bili_sync",
		Name:      "videos_completed_total",
		Help:      "Videos fully downloaded.",
	})

	// TaskFailures counts sub-task failures by task name.
	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bili_sync",
		Name:      "task_failures_total",
		Help:      "Sub-task failures by task.",
	}, []string{"task"})

	// RiskControlHits counts risk-control aborts.
	RiskControlHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bili_sync",
		Name:      "risk_control_hits_total",
		Help:      "Cycles aborted by upstream risk control.",
	})

	// RequestDuration observes upstream request latency by endpoint group.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bili_sync",
		Name:      "request_duration_seconds",
		Help:      "Upstream request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group"})
)
