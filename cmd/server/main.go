package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/cache"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/config"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dedup"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dispatch"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/engine"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/roster"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/segment"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/server"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "call-translator"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load a local .env if present, so OPENAI_API_KEY can live outside the
	// config file. A missing file is not an error.
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.Address),
		slog.Int("port", cfg.Server.Port),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_queue_size", cfg.Audio.FrameQueueSize),
		slog.Float64("silence_energy_threshold", cfg.Segmentation.SilenceEnergyThreshold),
		slog.Duration("silence_duration_threshold", cfg.Segmentation.GetSilenceDurationThreshold()),
		slog.Int("max_frames_before_force", cfg.Segmentation.MaxFramesBeforeForce),
		slog.Duration("dedup_window", cfg.Dedup.GetWindow()),
		slog.Int("cache_capacity", cfg.Cache.Capacity),
		slog.String("stt_model", cfg.Engine.STTModel),
		slog.String("translate_model", cfg.Engine.TranslateModel),
		slog.String("tts_model", cfg.Engine.TTSModel),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the speech and translation engine
	eng, err := engine.NewOpenAI(engine.Config{
		APIKey:         cfg.Engine.APIKey,
		BaseURL:        cfg.Engine.BaseURL,
		STTModel:       cfg.Engine.STTModel,
		TranslateModel: cfg.Engine.TranslateModel,
		TTSModel:       cfg.Engine.TTSModel,
		Timeout:        cfg.Engine.GetTimeout(),
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The gateway doubles as the call roster and the result sink. It is
	// created before the registry and bound to it afterwards.
	gateway := server.NewGateway(logger, appMetrics)

	deduplicator := dedup.New(cfg.Dedup.GetWindow())
	synthCache := cache.New(cfg.Cache.Capacity)
	resolver := roster.NewResolver(gateway)

	dispatcher := dispatch.New(
		dispatch.Config{
			SampleRate: cfg.Audio.SampleRate,
			Voice:      cfg.Engine.Voice,
		},
		resolver, deduplicator, synthCache,
		eng, eng, eng, gateway,
		logger, appMetrics,
	)

	pipeline, err := stream.NewPipeline(
		stream.PipelineConfig{
			SilenceEnergyThreshold: cfg.Segmentation.SilenceEnergyThreshold,
			Segmentation: segment.Config{
				SampleRate:               cfg.Audio.SampleRate,
				MinSegmentDuration:       cfg.Segmentation.GetMinSegmentDuration(),
				SilenceDurationThreshold: cfg.Segmentation.GetSilenceDurationThreshold(),
				MaxFramesBeforeForce:     cfg.Segmentation.MaxFramesBeforeForce,
				AbsoluteTimeout:          cfg.Segmentation.GetAbsoluteTimeout(),
			},
		},
		dispatcher, logger, appMetrics,
	)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := stream.NewRegistry(logger, appMetrics, cfg.Audio.FrameQueueSize, pipeline.Run)
	gateway.Bind(registry)
	logger.Info("Stream registry initialized",
		slog.Int("frame_queue_size", cfg.Audio.FrameQueueSize),
	)

	// Initialize HTTP server (hosts /ws and the monitoring API)
	httpServer := server.NewHTTPServer(logger, cfg, gateway, registry, deduplicator, synthCache, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the registry (tears down every stream and waits for the loops)
	registry.Close()

	// Get final statistics
	cacheStats := synthCache.GetStats()
	dedupStats := deduplicator.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("cache_hits", cacheStats.Hits),
		slog.Uint64("cache_misses", cacheStats.Misses),
		slog.Uint64("duplicates_suppressed", dedupStats.Suppressed),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
