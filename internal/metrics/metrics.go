// Package metrics provides Prometheus metrics collection for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus collectors for the assistant.
type Metrics struct {
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	SessionsStarted prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionsActive  prometheus.Gauge

	MeetingsBooked prometheus.Counter
	MediaShown     *prometheus.CounterVec

	FallbacksTotal     *prometheus.CounterVec
	AudioTurnsTotal    *prometheus.CounterVec
	EventPublishErrors prometheus.Counter

	registry prometheus.Gatherer
}

// NewMetrics registers all collectors on the default registry.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry uses a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jane_turns_total",
				Help: "Total number of conversation turns by decision kind",
			},
			[]string{"kind"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jane_turn_duration_seconds",
				Help:    "Time taken to process one conversation turn",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jane_sessions_started_total",
				Help: "Total number of sessions started",
			},
		),
		SessionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jane_sessions_closed_total",
				Help: "Total number of sessions closed",
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jane_sessions_active",
				Help: "Number of sessions currently active in memory",
			},
		),
		MeetingsBooked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jane_meetings_booked_total",
				Help: "Total number of meetings committed to the calendar",
			},
		),
		MediaShown: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jane_media_shown_total",
				Help: "Total number of media triggers by media type",
			},
			[]string{"media_type"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jane_fallbacks_total",
				Help: "Total number of generative fallback calls by outcome",
			},
			[]string{"outcome"},
		),
		AudioTurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jane_audio_turns_total",
				Help: "Total number of audio turns by outcome",
			},
			[]string{"outcome"},
		),
		EventPublishErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jane_event_publish_errors_total",
				Help: "Total number of failed event publications",
			},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records a processed turn and its duration.
func (m *Metrics) RecordTurn(kind string, duration time.Duration) {
	m.TurnsTotal.WithLabelValues(kind).Inc()
	m.TurnDuration.Observe(duration.Seconds())
}

// RecordFallback records a generative fallback call.
func (m *Metrics) RecordFallback(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.FallbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordAudioTurn records an audio turn outcome.
func (m *Metrics) RecordAudioTurn(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.AudioTurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordMediaShown records a media trigger.
func (m *Metrics) RecordMediaShown(mediaType string) {
	m.MediaShown.WithLabelValues(mediaType).Inc()
}
