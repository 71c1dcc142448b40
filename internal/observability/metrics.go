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
	ActiveDialogues        prometheus.Gauge
	DialogueEvents         *prometheus.CounterVec
	Frames                 *prometheus.CounterVec
	FrameParseFailures     prometheus.Counter
	PlaybackEvents         *prometheus.CounterVec
	WSMessages             *prometheus.CounterVec
	CaptureFinalizeSeconds prometheus.Histogram
	FirstTokenLatency      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveDialogues: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_dialogues",
			Help:      "Number of open dialogue sessions.",
		}),
		DialogueEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_events_total",
			Help:      "Dialogue lifecycle events by type.",
		}, []string{"event"}),
		Frames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Classified agent stream frames by kind.",
		}, []string{"kind"}),
		FrameParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frame_parse_failures_total",
			Help:      "Stream payload lines dropped as unparseable.",
		}),
		PlaybackEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_events_total",
			Help:      "Playback queue outcomes by type.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "UI bridge websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CaptureFinalizeSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_finalize_seconds",
			Help:      "Wall time spent finalizing a capture session into a WAV container.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		FirstTokenLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_latency_ms",
			Help:      "Latency from submit to the first agent token in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
	}
}

func (m *Metrics) ObserveFirstTokenLatency(d time.Duration) {
	m.FirstTokenLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveCaptureFinalize(d time.Duration) {
	m.CaptureFinalizeSeconds.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
