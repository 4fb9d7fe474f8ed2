package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/cache"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/config"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dedup"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/stream"
)

// HTTPServer hosts the participant WebSocket endpoint alongside the HTTP API
// for monitoring and management.
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	gateway  *Gateway
	registry *stream.Registry
	dedup    *dedup.Deduplicator
	cache    *cache.Cache
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP server with all routes configured.
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, gateway *Gateway,
	registry *stream.Registry, d *dedup.Deduplicator, c *cache.Cache, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		gateway:   gateway,
		registry:  registry,
		dedup:     d,
		cache:     c,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// No read or write timeouts: /ws connections are long-lived.
	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Participant WebSocket endpoint
	mux.HandleFunc("/ws", h.gateway.HandleWS)

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoint
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))

	// Stream monitoring endpoint
	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "call-translator",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"gateway": map[string]interface{}{
				"status":          "running",
				"connected_peers": h.gateway.PeerCount(),
				"active_sessions": len(h.gateway.Sessions()),
			},
			"streams": map[string]interface{}{
				"status": "running",
				"active": h.registry.Count(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.gateway.Sessions()

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streams := h.registry.Snapshot()

	response := map[string]interface{}{
		"total_streams": len(streams),
		"timestamp":     time.Now().UTC(),
		"streams":       streams,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"address": h.config.Server.Address,
			"port":    h.config.Server.Port,
		},
		"audio": map[string]interface{}{
			"sample_rate":      h.config.Audio.SampleRate,
			"frame_queue_size": h.config.Audio.FrameQueueSize,
		},
		"segmentation": map[string]interface{}{
			"silence_energy_threshold":      h.config.Segmentation.SilenceEnergyThreshold,
			"silence_duration_threshold_ms": h.config.Segmentation.SilenceDurationThresholdMs,
			"min_segment_duration_ms":       h.config.Segmentation.MinSegmentDurationMs,
			"max_frames_before_force":       h.config.Segmentation.MaxFramesBeforeForce,
			"absolute_timeout_ms":           h.config.Segmentation.AbsoluteTimeoutMs,
		},
		"dedup": map[string]interface{}{
			"window_seconds": h.config.Dedup.WindowSeconds,
		},
		"cache": map[string]interface{}{
			"capacity": h.config.Cache.Capacity,
		},
		"engine": map[string]interface{}{
			"base_url":        h.config.Engine.BaseURL,
			"stt_model":       h.config.Engine.STTModel,
			"translate_model": h.config.Engine.TranslateModel,
			"tts_model":       h.config.Engine.TTSModel,
			"voice":           h.config.Engine.Voice,
			"timeout_seconds": h.config.Engine.TimeoutSeconds,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cacheStats := h.cache.GetStats()
	dedupStats := h.dedup.GetStats()

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"gateway": map[string]interface{}{
			"connected_peers": h.gateway.PeerCount(),
			"active_sessions": len(h.gateway.Sessions()),
		},
		"streams": map[string]interface{}{
			"active_count": h.registry.Count(),
		},
		"cache": cacheStats,
		"dedup": dedupStats,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Real-Time Call Translator",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":         "API documentation",
			"GET /ws":       "Participant WebSocket endpoint",
			"GET /health":   "Service health check",
			"GET /sessions": "List active call sessions",
			"GET /streams":  "List active speaker streams",
			"GET /config":   "Get service configuration",
			"GET /stats":    "Get service statistics",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
