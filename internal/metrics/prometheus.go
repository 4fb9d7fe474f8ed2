// Package metrics defines the Prometheus instrumentation for the call
// translation service. All record helpers are nil-receiver safe so code
// paths under test can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the call translation service.
type Metrics struct {
	// Ingestion metrics
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter

	// Stream metrics
	ActiveStreams  prometheus.Gauge
	StreamsCreated prometheus.Counter
	StreamsClosed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Segmentation metrics
	SegmentsFlushed *prometheus.CounterVec // by flush reason
	SegmentDuration prometheus.Histogram

	// Dispatch metrics
	SegmentsDiscarded     *prometheus.CounterVec // by discard reason
	Transcriptions        prometheus.Counter
	TranscriptionFailures prometheus.Counter
	DuplicatesSuppressed  prometheus.Counter
	TranslationBranches   *prometheus.CounterVec // by target language
	BranchFailures        *prometheus.CounterVec // by target language
	CacheHits             prometheus.Counter
	CacheMisses           prometheus.Counter
	ResultsPublished      prometheus.Counter
	PublishFailures       prometheus.Counter
	EngineCallDuration    *prometheus.HistogramVec // by call type

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_frames_received_total",
			Help: "Total number of audio frames received from clients",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_frames_dropped_total",
			Help: "Total number of audio frames dropped due to full stream queues",
		}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ctr_active_streams",
			Help: "Current number of live speaker streams",
		}),
		StreamsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_streams_created_total",
			Help: "Total number of speaker streams created",
		}),
		StreamsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_streams_closed_total",
			Help: "Total number of speaker streams closed",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctr_stream_duration_seconds",
			Help:    "Lifetime of speaker streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		SegmentsFlushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_segments_flushed_total",
			Help: "Total number of segments flushed, by trigger",
		}, []string{"reason"}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctr_segment_duration_seconds",
			Help:    "Duration of flushed audio segments",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		}),

		SegmentsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_segments_discarded_total",
			Help: "Total number of segments discarded before fan-out, by reason",
		}, []string{"reason"}),
		Transcriptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_transcriptions_total",
			Help: "Total number of successful transcription calls",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_transcription_failures_total",
			Help: "Total number of failed transcription calls",
		}),
		DuplicatesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_duplicates_suppressed_total",
			Help: "Total number of transcripts suppressed as duplicates",
		}),
		TranslationBranches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_translation_branches_total",
			Help: "Total number of per-language fan-out branches started",
		}, []string{"language"}),
		BranchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_branch_failures_total",
			Help: "Total number of fan-out branches that failed",
		}, []string{"language"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_synthesis_cache_hits_total",
			Help: "Total number of synthesis cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_synthesis_cache_misses_total",
			Help: "Total number of synthesis cache misses",
		}),
		ResultsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_results_published_total",
			Help: "Total number of translation results published",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ctr_publish_failures_total",
			Help: "Total number of failed publish calls",
		}),
		EngineCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ctr_engine_call_duration_seconds",
			Help:    "Duration of external engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"call"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ctr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ctr_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameReceived increments the frames received counter.
func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordFrameDropped increments the frames dropped counter.
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordStreamCreated increments stream creation counters.
func (m *Metrics) RecordStreamCreated() {
	if m == nil {
		return
	}
	m.StreamsCreated.Inc()
	m.ActiveStreams.Inc()
}

// RecordStreamClosed records a closed stream and its lifetime.
func (m *Metrics) RecordStreamClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.StreamsClosed.Inc()
	m.ActiveStreams.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordSegmentFlushed records a flushed segment with its trigger.
func (m *Metrics) RecordSegmentFlushed(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFlushed.WithLabelValues(reason).Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDiscarded records a segment dropped before fan-out.
func (m *Metrics) RecordSegmentDiscarded(reason string) {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.WithLabelValues(reason).Inc()
}

// RecordTranscription records the outcome of a transcription call.
func (m *Metrics) RecordTranscription(success bool) {
	if m == nil {
		return
	}
	if success {
		m.Transcriptions.Inc()
	} else {
		m.TranscriptionFailures.Inc()
	}
}

// RecordDuplicateSuppressed increments the duplicate suppression counter.
func (m *Metrics) RecordDuplicateSuppressed() {
	if m == nil {
		return
	}
	m.DuplicatesSuppressed.Inc()
}

// RecordBranch records a started fan-out branch for a target language.
func (m *Metrics) RecordBranch(language string) {
	if m == nil {
		return
	}
	m.TranslationBranches.WithLabelValues(language).Inc()
}

// RecordBranchFailure records a failed fan-out branch.
func (m *Metrics) RecordBranchFailure(language string) {
	if m == nil {
		return
	}
	m.BranchFailures.WithLabelValues(language).Inc()
}

// RecordCacheLookup records a synthesis cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordResultPublished records the outcome of a publish call.
func (m *Metrics) RecordResultPublished(success bool) {
	if m == nil {
		return
	}
	if success {
		m.ResultsPublished.Inc()
	} else {
		m.PublishFailures.Inc()
	}
}

// RecordEngineCall records the duration of an external engine call.
func (m *Metrics) RecordEngineCall(call string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EngineCallDuration.WithLabelValues(call).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
