package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the crawler collectors. A nil *Metrics records nothing.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Navigations       *prometheus.CounterVec
	PageStates        *prometheus.CounterVec
	ChallengeAttempts *prometheus.CounterVec
	RecordsExtracted  *prometheus.CounterVec
	RecordsDropped    *prometheus.CounterVec
	SessionsActive    prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the collectors registered on the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_operations_total",
				Help: "Crawl operations by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carscout_operation_duration_seconds",
				Help:    "Duration of crawl operations.",
				Buckets: []float64{1, 5, 10, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		Navigations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_navigations_total",
				Help: "Page navigations by outcome.",
			},
			[]string{"outcome"},
		),
		PageStates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_page_states_total",
				Help: "Classified page states.",
			},
			[]string{"state"},
		),
		ChallengeAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_challenge_attempts_total",
				Help: "Bot challenge clearing attempts by result.",
			},
			[]string{"result"},
		),
		RecordsExtracted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_records_extracted_total",
				Help: "Records extracted by kind.",
			},
			[]string{"kind"},
		),
		RecordsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carscout_records_dropped_total",
				Help: "Malformed or filtered items dropped by kind.",
			},
			[]string{"kind"},
		),
		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "carscout_browser_sessions_active",
				Help: "Browser sessions currently held.",
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (m *Metrics) ObserveOperation(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(kind, outcome).Inc()
	m.OperationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) Navigation(outcome string) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PageState(state string) {
	if m == nil {
		return
	}
	m.PageStates.WithLabelValues(state).Inc()
}

func (m *Metrics) ChallengeAttempt(result string) {
	if m == nil {
		return
	}
	m.ChallengeAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Records(kind string, extracted, dropped int) {
	if m == nil {
		return
	}
	m.RecordsExtracted.WithLabelValues(kind).Add(float64(extracted))
	m.RecordsDropped.WithLabelValues(kind).Add(float64(dropped))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) HTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
