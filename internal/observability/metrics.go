package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	ProviderFallbacks   *prometheus.CounterVec
	QuestionLatency     prometheus.Histogram
	QuestionsPerSession prometheus.Histogram

	window *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		window: newStageWindow(256),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active identification sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Phrasing provider errors by provider and code.",
		}, []string{"provider", "code"}),
		ProviderFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Fallthroughs in the phrasing provider chain by provider.",
		}, []string{"provider"}),
		QuestionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_latency_ms",
			Help:      "Latency to produce the next question in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2000, 5000},
		}),
		QuestionsPerSession: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "questions_per_session",
			Help:      "Questions asked before a session completed.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		}),
	}
}

func (m *Metrics) ObserveQuestionLatency(d time.Duration) {
	m.QuestionLatency.Observe(float64(d.Milliseconds()))
	m.window.Observe("phrase_question", d.Seconds()*1000)
}

// ObserveStage records a latency sample in the rolling stats window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.window.Observe(stage, d.Seconds()*1000)
}

// ObserveIndicator counts a named event in the rolling stats window.
func (m *Metrics) ObserveIndicator(name string) {
	m.window.ObserveIndicator(name)
}

// Stats returns the rolling-window latency snapshot.
func (m *Metrics) Stats() StatsSnapshot {
	return m.window.Snapshot()
}

// ResetStats clears the rolling window without touching Prometheus state.
func (m *Metrics) ResetStats() {
	m.window.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
