package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mms"

// Metrics holds the collectors shared by the session coordinator, its
// periodic tasks and the record store.
type Metrics struct {
	TaskRuns             *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	StoreCalls           *prometheus.CounterVec
	StoreLatency         *prometheus.HistogramVec
	LifecycleTransitions *prometheus.CounterVec
	EndMeetingFailures   *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	TokensIssued         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Total periodic task runs by task and status.",
			},
			[]string{"task", "status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Periodic task duration in seconds by task.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"task"},
		),
		StoreCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recordstore_calls_total",
				Help:      "Total record store calls by operation, model and status.",
			},
			[]string{"op", "model", "status"},
		),
		StoreLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recordstore_latency_seconds",
				Help:      "Record store call latency in seconds by operation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		LifecycleTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Coordinator state transitions by source and target state.",
			},
			[]string{"from", "to"},
		),
		EndMeetingFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "end_meeting_failures_total",
				Help:      "End meeting commits aborted by failing stage.",
			},
			[]string{"stage"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Session coordinators currently held in memory.",
			},
		),
		TokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "video_tokens_total",
				Help:      "Video conference token exchanges by status.",
			},
			[]string{"status"},
		),
	}
}

// Discard returns collectors bound to a private registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
