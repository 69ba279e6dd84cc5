// Package metrics instruments the RTMS ingestion service with Prometheus
// counters and gauges. It mirrors the shape of a hand-rolled in-memory
// recorder (HTTP request counts/durations, stream lifecycle events, adapter
// attempt/failure counts, active-session gauges) but backs every metric with
// github.com/prometheus/client_golang so the process exposes a standard
// /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder aggregates every metric the core and its adapters emit.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sessionsActive      prometheus.Gauge
	sessionEvents       *prometheus.CounterVec
	mediaSubsActive     prometheus.Gauge
	fillerEmissions     *prometheus.CounterVec
	fillerDrops         *prometheus.CounterVec
	transcriptChunks    prometheus.Counter
	transcriptSummaries prometheus.Counter
	adapterAttempts     *prometheus.CounterVec
	adapterFailures     *prometheus.CounterVec
}

var defaultRecorder = New()

// New constructs a Recorder with its own registry so multiple instances
// (e.g. in tests) never collide on metric names.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_http_requests_total",
			Help: "HTTP requests served by the ingestion API, by method/path/status.",
		}, []string{"method", "path", "status"}),
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtms_http_request_duration_seconds",
			Help:    "HTTP request latency by method/path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rtms_sessions_active",
			Help: "Number of stream sessions currently tracked in the connection registry.",
		}),
		sessionEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_session_events_total",
			Help: "Stream session lifecycle events by kind (started, stopped, reconnect, error).",
		}, []string{"kind"}),
		mediaSubsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rtms_media_subsockets_active",
			Help: "Number of open media sub-sockets across all active sessions.",
		}),
		fillerEmissions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_filler_emissions_total",
			Help: "Frames emitted by jitter/gap fillers, by media type and kind (real, filler).",
		}, []string{"media", "kind"}),
		fillerDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_filler_drops_total",
			Help: "Packets dropped by jitter/gap fillers, by media type.",
		}, []string{"media"}),
		transcriptChunks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rtms_transcript_chunks_total",
			Help: "Transcript chunks emitted to the index adapter.",
		}),
		transcriptSummaries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rtms_transcript_summaries_total",
			Help: "Per-speaker summarize triggers emitted.",
		}),
		adapterAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_adapter_attempts_total",
			Help: "Adapter calls attempted, by adapter name.",
		}, []string{"adapter"}),
		adapterFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_adapter_failures_total",
			Help: "Adapter calls that returned an error, by adapter name.",
		}, []string{"adapter"}),
	}
	return r
}

// Default returns the process-wide Recorder used when no explicit instance
// is threaded through.
func Default() *Recorder {
	return defaultRecorder
}

// Handler exposes the registry on an http.Handler suitable for mounting at
// /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request's outcome and latency.
func (r *Recorder) ObserveRequest(method, path string, status int, d time.Duration) {
	r.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SessionStarted/SessionStopped track the active-session gauge.
func (r *Recorder) SessionStarted() {
	r.sessionEvents.WithLabelValues("started").Inc()
	r.sessionsActive.Inc()
}

func (r *Recorder) SessionStopped() {
	r.sessionEvents.WithLabelValues("stopped").Inc()
	r.sessionsActive.Dec()
}

// SyncSessionsActive overwrites the active-session gauge with an
// authoritative count, correcting any drift from a missed
// SessionStarted/SessionStopped pairing (e.g. a process crash mid-session).
func (r *Recorder) SyncSessionsActive(n int) {
	r.sessionsActive.Set(float64(n))
}

func (r *Recorder) SessionReconnect() {
	r.sessionEvents.WithLabelValues("reconnect").Inc()
}

func (r *Recorder) SessionError(category string) {
	r.sessionEvents.WithLabelValues("error_" + category).Inc()
}

func (r *Recorder) MediaSubOpened() {
	r.mediaSubsActive.Inc()
}

func (r *Recorder) MediaSubClosed() {
	r.mediaSubsActive.Dec()
}

func (r *Recorder) FillerEmitted(media string, real bool) {
	kind := "filler"
	if real {
		kind = "real"
	}
	r.fillerEmissions.WithLabelValues(media, kind).Inc()
}

func (r *Recorder) FillerDropped(media string) {
	r.fillerDrops.WithLabelValues(media).Inc()
}

func (r *Recorder) TranscriptChunkEmitted() {
	r.transcriptChunks.Inc()
}

func (r *Recorder) TranscriptSummaryEmitted() {
	r.transcriptSummaries.Inc()
}

func (r *Recorder) AdapterAttempt(name string) {
	r.adapterAttempts.WithLabelValues(name).Inc()
}

func (r *Recorder) AdapterFailure(name string) {
	r.adapterFailures.WithLabelValues(name).Inc()
}
