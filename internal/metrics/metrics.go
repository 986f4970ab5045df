package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "theiacloud_operator"

// Sweep reasons.
const (
	ReasonTimeout    = "timeout"
	ReasonNoActivity = "no-activity"
)

// Launch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds the operator's Prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	eventsDispatched *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	watchRestarts    *prometheus.CounterVec
	sessionsSwept    *prometheus.CounterVec
	launches         *prometheus.CounterVec
	launchWait       *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		eventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Watch events dispatched to a handler",
			},
			[]string{"kind", "action"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Handler invocations that returned an error or panicked",
			},
			[]string{"kind"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Duration of handler invocations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		watchRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_restarts_total",
				Help:      "Watches that were closed by the server and reopened",
			},
			[]string{"kind"},
		),
		sessionsSwept: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_swept_total",
				Help:      "Sessions deleted by the timeout sweeper or the activity tracker",
			},
			[]string{"reason"},
		),
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "launches_total",
				Help:      "Synchronous launches by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		launchWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "launch_wait_seconds",
				Help:      "Time a launch waited for the operator to report a result",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.eventsDispatched,
		m.handlerFailures,
		m.handlerDuration,
		m.watchRestarts,
		m.sessionsSwept,
		m.launches,
		m.launchWait,
	)
	return m
}

// Registry exposes the registry, e.g. to gather metrics in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDispatch records one handler invocation for a watch event.
func (m *Metrics) RecordDispatch(kind, action string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(kind, action).Inc()
	m.handlerDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		m.handlerFailures.WithLabelValues(kind).Inc()
	}
}

// RecordWatchRestart records a watch that had to be reopened.
func (m *Metrics) RecordWatchRestart(kind string) {
	if m == nil {
		return
	}
	m.watchRestarts.WithLabelValues(kind).Inc()
}

// RecordSweep records a session deleted for reason.
func (m *Metrics) RecordSweep(reason string) {
	if m == nil {
		return
	}
	m.sessionsSwept.WithLabelValues(reason).Inc()
}

// RecordLaunch records the outcome of a launch and how long it waited.
func (m *Metrics) RecordLaunch(kind, outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(kind, outcome).Inc()
	m.launchWait.WithLabelValues(kind).Observe(waited.Seconds())
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
