package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linscore/internal/score"
)

// Scoring run results used as the "result" label.
const (
	ResultOK          = "ok"
	ResultZeroWeights = "zero_weights"
	ResultMismatch    = "mismatch"
	ResultUnknownTag  = "unknown_tag"
	ResultError       = "error"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived   prometheus.Counter
	ScoringRuns      *prometheus.CounterVec
	ScoringDuration  prometheus.Histogram
	BufferedEntities prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linscore_events_received_total",
				Help: "Total number of transport-service events received",
			},
		),

		ScoringRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linscore_scoring_runs_total",
				Help: "Total number of scoring runs by result",
			},
			[]string{"result"},
		),

		ScoringDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linscore_scoring_duration_seconds",
				Help:    "Duration of scoring runs in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		BufferedEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linscore_buffered_entities",
				Help: "Number of entities with buffered events",
			},
		),
	}

	m.registry.MustRegister(m.EventsReceived, m.ScoringRuns, m.ScoringDuration, m.BufferedEntities)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records the duration and result of one scoring run.
func (m *Metrics) ObserveRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ScoringDuration.Observe(d.Seconds())
	m.ScoringRuns.WithLabelValues(Result(err)).Inc()
}

// ObserveEvent counts one received event and updates the buffered entities gauge.
func (m *Metrics) ObserveEvent(buffered int) {
	if m == nil {
		return
	}
	m.EventsReceived.Inc()
	m.BufferedEntities.Set(float64(buffered))
}

// Result maps a scoring error to its metric label.
func Result(err error) string {
	var (
		zero     *score.ZeroWeightsError
		mismatch *score.ConfigurationMismatchError
		unknown  *score.UnknownTagError
	)
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &zero):
		return ResultZeroWeights
	case errors.As(err, &mismatch):
		return ResultMismatch
	case errors.As(err, &unknown):
		return ResultUnknownTag
	default:
		return ResultError
	}
}
