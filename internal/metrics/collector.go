// Package metrics exposes live session measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ema_live"

// Collector records session, turn and vendor metrics. It satisfies the
// orchestrator's Metrics interface.
type Collector struct {
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	sessionDuration  prometheus.Histogram
	turnsTotal       prometheus.Counter
	turnDuration     prometheus.Histogram
	turnChunks       prometheus.Histogram
	audioChunksTotal prometheus.Counter
	audioBytesTotal  prometheus.Counter
	vendorErrors     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// NewCollector registers every metric on registerer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)

	return &Collector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions currently running",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of live sessions started",
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
		turnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed conversation turns",
		}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from final transcript to end of synthesis input",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		turnChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_text_chunks",
			Help:      "Generated text chunks per turn",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		audioChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_relayed_total",
			Help:      "Total number of synthesized audio chunks relayed to clients",
		}),
		audioBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_relayed_total",
			Help:      "Total synthesized audio bytes relayed to clients",
		}),
		vendorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_errors_total",
			Help:      "Total number of errors reported by vendor engines",
		}, []string{"component"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "status"}),
	}
}

func (c *Collector) SessionStarted() {
	c.sessionsActive.Inc()
	c.sessionsTotal.Inc()
}

func (c *Collector) SessionEnded(duration time.Duration) {
	c.sessionsActive.Dec()
	c.sessionDuration.Observe(duration.Seconds())
}

func (c *Collector) TurnCompleted(duration time.Duration, chunks int) {
	c.turnsTotal.Inc()
	c.turnDuration.Observe(duration.Seconds())
	c.turnChunks.Observe(float64(chunks))
}

func (c *Collector) AudioChunkRelayed(bytes int) {
	c.audioChunksTotal.Inc()
	c.audioBytesTotal.Add(float64(bytes))
}

func (c *Collector) VendorError(component string) {
	c.vendorErrors.WithLabelValues(component).Inc()
}

// RecordHTTPRequest counts one served request by route pattern and status.
func (c *Collector) RecordHTTPRequest(route string, status int) {
	c.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
