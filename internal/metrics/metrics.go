// Package metrics exposes the Prometheus gauges and counters for task and
// agent activity. Adapted from a generic HTTP/business metric set down to
// the scheduler- and dashboard-relevant series; the HTTP request
// middleware is dropped since mobius exposes only a /metrics scrape
// endpoint, never an HTTP API of its own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide collection of mobius's exported series,
// registered against a private registry rather than prometheus's global
// default so constructing more than one Metrics in the same process
// never panics on duplicate registration.
type Metrics struct {
	registry             *prometheus.Registry
	TasksTotal           *prometheus.CounterVec
	ActiveAgents         prometheus.Gauge
	AgentTokenUsageTotal *prometheus.CounterVec
	LockWaitSeconds      prometheus.Histogram
	SchedulerLoopSeconds prometheus.Histogram
}

// New creates and registers every mobius metric series.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobius_tasks_total",
				Help: "Total number of sub-tasks that reached a terminal or transitional status, labeled by status.",
			},
			[]string{"status"},
		),
		ActiveAgents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mobius_active_agents",
				Help: "Number of agent processes currently running.",
			},
		),
		AgentTokenUsageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobius_agent_token_usage_total",
				Help: "Cumulative token usage per task, labeled by direction (input/output).",
			},
			[]string{"task", "direction"},
		),
		LockWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mobius_lock_wait_seconds",
				Help:    "Time spent waiting to acquire the git lock.",
				Buckets: prometheus.DefBuckets,
			},
		),
		SchedulerLoopSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mobius_scheduler_loop_seconds",
				Help:    "Duration of one scheduler admission-loop iteration.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.TasksTotal,
		m.ActiveAgents,
		m.AgentTokenUsageTotal,
		m.LockWaitSeconds,
		m.SchedulerLoopSeconds,
	)

	return m
}

// IncTask records one sub-task reaching status (e.g. "Done", "Failed").
func (m *Metrics) IncTask(status string) {
	m.TasksTotal.WithLabelValues(status).Inc()
}

// SetActiveAgents reports the current count of running agent processes.
func (m *Metrics) SetActiveAgents(n int) {
	m.ActiveAgents.Set(float64(n))
}

// RecordTokenUsage adds input/output token deltas for one task.
func (m *Metrics) RecordTokenUsage(taskID string, inputTokens, outputTokens int64) {
	m.AgentTokenUsageTotal.WithLabelValues(taskID, "input").Add(float64(inputTokens))
	m.AgentTokenUsageTotal.WithLabelValues(taskID, "output").Add(float64(outputTokens))
}

// Handler returns the Prometheus scrape HTTP handler for this Metrics'
// private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
