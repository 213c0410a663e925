// Package metrics exposes Prometheus collectors for poll sessions.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by a Poller.
type Metrics struct {
	PollsTotal      *prometheus.CounterVec
	PollDuration    prometheus.Histogram
	SessionsStarted prometheus.Counter
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionElapsed  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
//
// A nil reg leaves the collectors unregistered, which is useful for tests.
// Collectors already registered (e.g. by a second Poller on the same
// registry) are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exportwatch",
				Name:      "polls_total",
				Help:      "Total number of status polls by result",
			},
			[]string{"result"},
		),
		PollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "exportwatch",
				Name:      "poll_duration_seconds",
				Help:      "Latency of status poll requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "exportwatch",
				Name:      "sessions_started_total",
				Help:      "Total number of poll sessions started",
			},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exportwatch",
				Name:      "sessions_finished_total",
				Help:      "Total number of poll sessions by terminal state",
			},
			[]string{"state"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "exportwatch",
				Name:      "sessions_active",
				Help:      "Number of poll sessions currently polling",
			},
		),
		SessionElapsed: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "exportwatch",
				Name:      "session_elapsed_seconds",
				Help:      "Consumed budget of finished sessions in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"state"},
		),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.PollsTotal, err = register(reg, m.PollsTotal)
	if err != nil {
		return nil, err
	}
	m.PollDuration, err = register(reg, m.PollDuration)
	if err != nil {
		return nil, err
	}
	m.SessionsStarted, err = register(reg, m.SessionsStarted)
	if err != nil {
		return nil, err
	}
	m.SessionsTotal, err = register(reg, m.SessionsTotal)
	if err != nil {
		return nil, err
	}
	m.SessionsActive, err = register(reg, m.SessionsActive)
	if err != nil {
		return nil, err
	}
	m.SessionElapsed, err = register(reg, m.SessionElapsed)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector if an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObservePoll records one completed poll. result is "ready", "not_ready" or "error".
func (m *Metrics) ObservePoll(result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(result).Inc()
	m.PollDuration.Observe(latency.Seconds())
}

// SessionStarted records a session entering the polling state.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// SessionFinished records a terminal transition.
func (m *Metrics) SessionFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(state).Inc()
	m.SessionElapsed.WithLabelValues(state).Observe(elapsed.Seconds())
}
