// Package metrics holds the Prometheus collectors for the voice engine, the
// text mentor, and the status surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session states as reported by the state gauge.
const (
	StateIdle       = 0
	StateConnecting = 1
	StateActive     = 2
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Live session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionState    prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Audio metrics
	FramesSent       prometheus.Counter
	FramesDropped    prometheus.Counter
	AudioChunksTotal *prometheus.CounterVec
	Interruptions    prometheus.Counter
	MicLevel         prometheus.Gauge

	// Transcript metrics
	TurnsCommitted    prometheus.Counter
	PersistenceErrors *prometheus.CounterVec

	// Text mentor metrics
	ChatMessagesTotal *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vai_mentor"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Live sessions by outcome",
		}, []string{"status"}),
		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_session_state",
			Help:      "Current lifecycle state (0 idle, 1 connecting, 2 active)",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Microphone frames handed to the remote session",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Microphone frames dropped on a full outbound queue",
		}),
		AudioChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Inbound audio chunks by result",
		}, []string{"result"}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Playback interruptions signalled by the remote model",
		}),
		MicLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_level_rms",
			Help:      "RMS level of the most recent microphone frame",
		}),
		TurnsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_committed_total",
			Help:      "Completed exchanges that changed the transcript",
		}),
		PersistenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_errors_total",
			Help:      "History store failures by operation",
		}, []string{"op"}),
		ChatMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Text mentor messages by status",
		}, []string{"status"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status surface requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status surface request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session entering Connecting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionState.Set(StateConnecting)
}

// RecordSessionActive records the remote acknowledging a session.
func (m *Metrics) RecordSessionActive() {
	if m == nil {
		return
	}
	m.SessionState.Set(StateActive)
}

// RecordSessionEnd records a session returning to Idle.
func (m *Metrics) RecordSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionState.Set(StateIdle)
	m.SessionsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.SessionDuration.Observe(duration.Seconds())
	}
}

// RecordFrameSent records one outbound microphone frame.
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordFrameDropped records one outbound frame discarded by the transport.
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordMicLevel records the RMS level of a microphone frame.
func (m *Metrics) RecordMicLevel(rms float64) {
	if m == nil {
		return
	}
	m.MicLevel.Set(rms)
}

// RecordAudioChunk records an inbound chunk; result is "scheduled" or the
// error type that caused it to be skipped.
func (m *Metrics) RecordAudioChunk(result string) {
	if m == nil {
		return
	}
	m.AudioChunksTotal.WithLabelValues(result).Inc()
}

// RecordInterruption records a playback interruption.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordTurnCommitted records a committed exchange.
func (m *Metrics) RecordTurnCommitted() {
	if m == nil {
		return
	}
	m.TurnsCommitted.Inc()
}

// RecordPersistenceError records a failed history operation.
func (m *Metrics) RecordPersistenceError(op string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(op).Inc()
}

// RecordChatMessage records a text mentor exchange.
func (m *Metrics) RecordChatMessage(status string) {
	if m == nil {
		return
	}
	m.ChatMessagesTotal.WithLabelValues(status).Inc()
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
