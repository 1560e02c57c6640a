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
	CallsDispatched      *prometheus.CounterVec
	WebhookTurns         *prometheus.CounterVec
	ProviderErrors       *prometheus.CounterVec
	TranscriptionLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CallsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_dispatched_total",
			Help:      "Outbound calls by outcome.",
		}, []string{"outcome"}),
		WebhookTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_turns_total",
			Help:      "Processed webhook turns by classified intent.",
		}, []string{"intent"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and stage.",
		}, []string{"provider", "stage"}),
		TranscriptionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_ms",
			Help:      "Recording transcription latency in milliseconds.",
			Buckets:   []float64{200, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
	}
}

func (m *Metrics) ObserveTranscriptionLatency(d time.Duration) {
	m.TranscriptionLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
