// Package metrics holds the package-level Prometheus metrics for the
// task queue, scheduler, leader election, and admin API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics.

	TaskPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "barn",
		Name:      "task_pickup_latency_seconds",
		Help:      "Time from a task's run_at to the worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	TaskExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "barn",
		Name:      "task_execution_duration_seconds",
		Help:      "Duration of a registered function's invocation.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"func", "outcome"})

	TasksQueuedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "barn",
		Name:      "tasks_queued",
		Help:      "Number of tasks currently in QUEUED status, last sampled.",
	})

	TasksCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barn",
		Name:      "tasks_completed_total",
		Help:      "Total tasks finished, by outcome (done, failed).",
	}, []string{"outcome"})

	// Scheduler metrics.

	SchedulesFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barn",
		Name:      "schedules_fired_total",
		Help:      "Total schedule firings, by schedule func.",
	}, []string{"func"})

	SchedulerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "barn",
		Name:      "scheduler_cycle_duration_seconds",
		Help:      "Time taken for one scheduler drain-until-stable pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// Leader election.

	LeaderState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "barn",
		Name:      "leader_state",
		Help:      "1 if this process currently holds the scheduler lease, 0 otherwise.",
	})

	// Notification bus.

	BusNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barn",
		Name:      "bus_notifications_total",
		Help:      "Total LISTEN/NOTIFY payloads received, by model.",
	}, []string{"model"})

	// HTTP metrics (admin API).

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "barn",
		Name:      "http_request_duration_seconds",
		Help:      "Admin API request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barn",
		Name:      "http_requests_total",
		Help:      "Total admin API requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every metric above against the default registry.
// Safe to call once per process, before the worker/scheduler loops
// start.
func Register() {
	prometheus.MustRegister(
		TaskPickupLatency,
		TaskExecutionDuration,
		TasksQueuedGauge,
		TasksCompletedTotal,
		SchedulesFiredTotal,
		SchedulerCycleDuration,
		LeaderState,
		BusNotificationsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer returns the dedicated metrics HTTP server, exposing
// /metrics on its own address separate from the admin API.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
