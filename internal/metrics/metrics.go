// Package metrics exposes Prometheus counters for submission recording.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solvetrack"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	submissions    *prometheus.CounterVec
	firstSolves    *prometheus.CounterVec
	statsSkipped   prometheus.Counter
	streakUpdates  *prometheus.CounterVec
	streakFailures prometheus.Counter
	queueMessages  *prometheus.CounterVec
}

// New creates collectors on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_recorded_total",
			Help:      "Submissions recorded, by verdict status and success.",
		}, []string{"status", "success"}),
		firstSolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "first_solves_total",
			Help:      "First-time problem solves, by difficulty.",
		}, []string{"difficulty"}),
		statsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statistics_skipped_total",
			Help:      "Statistics updates skipped because the user or problem was missing.",
		}),
		streakUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_updates_total",
			Help:      "Streak updates, by whether the stored streak changed.",
		}, []string{"changed"}),
		streakFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_failures_total",
			Help:      "Streak updates that failed after retries.",
		}),
		queueMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Verdict queue messages, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.firstSolves,
		m.statsSkipped,
		m.streakUpdates,
		m.streakFailures,
		m.queueMessages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SubmissionRecorded(status string, success bool) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) FirstSolve(difficulty string) {
	if m == nil {
		return
	}
	m.firstSolves.WithLabelValues(difficulty).Inc()
}

func (m *Metrics) StatisticsSkipped() {
	if m == nil {
		return
	}
	m.statsSkipped.Inc()
}

func (m *Metrics) StreakUpdated(changed bool) {
	if m == nil {
		return
	}
	m.streakUpdates.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

func (m *Metrics) StreakFailed() {
	if m == nil {
		return
	}
	m.streakFailures.Inc()
}

// Queue message results
const (
	QueueProcessed = "processed"
	QueueRejected  = "rejected"
	QueueRequeued  = "requeued"
	QueueFailed    = "failed"
)

// QueueMessage counts a consumed verdict message by result.
func (m *Metrics) QueueMessage(result string) {
	if m == nil {
		return
	}
	m.queueMessages.WithLabelValues(result).Inc()
}
