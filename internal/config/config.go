package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Audio        AudioConfig        `yaml:"audio"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Dedup        DedupConfig        `yaml:"dedup"`
	Cache        CacheConfig        `yaml:"cache"`
	Engine       EngineConfig       `yaml:"engine"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains the WebSocket/HTTP server configuration
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AudioConfig contains audio ingestion parameters
type AudioConfig struct {
	SampleRate     int `yaml:"sample_rate"`
	FrameQueueSize int `yaml:"frame_queue_size"` // frames buffered per stream
}

// SegmentationConfig contains the per-stream segmentation parameters
type SegmentationConfig struct {
	SilenceEnergyThreshold     float64 `yaml:"silence_energy_threshold"`      // RMS amplitude
	SilenceDurationThresholdMs int     `yaml:"silence_duration_threshold_ms"` // trailing silence before a pause flush
	MinSegmentDurationMs       int     `yaml:"min_segment_duration_ms"`
	MaxFramesBeforeForce       int     `yaml:"max_frames_before_force"`
	AbsoluteTimeoutMs          int     `yaml:"absolute_timeout_ms"` // since last voiced frame
}

// DedupConfig contains transcript deduplication parameters
type DedupConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// CacheConfig contains synthesis cache parameters
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// EngineConfig contains the speech and translation backend configuration
type EngineConfig struct {
	APIKey         string `yaml:"api_key"` // falls back to OPENAI_API_KEY
	BaseURL        string `yaml:"base_url"`
	STTModel       string `yaml:"stt_model"`
	TranslateModel string `yaml:"translate_model"`
	TTSModel       string `yaml:"tts_model"`
	Voice          string `yaml:"voice"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in every optional field left at its zero value
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameQueueSize == 0 {
		c.Audio.FrameQueueSize = 64
	}

	if c.Segmentation.SilenceEnergyThreshold == 0 {
		c.Segmentation.SilenceEnergyThreshold = 500
	}
	if c.Segmentation.SilenceDurationThresholdMs == 0 {
		c.Segmentation.SilenceDurationThresholdMs = 280
	}
	if c.Segmentation.MinSegmentDurationMs == 0 {
		c.Segmentation.MinSegmentDurationMs = 500
	}
	if c.Segmentation.MaxFramesBeforeForce == 0 {
		c.Segmentation.MaxFramesBeforeForce = 5
	}
	if c.Segmentation.AbsoluteTimeoutMs == 0 {
		c.Segmentation.AbsoluteTimeoutMs = 1000
	}

	if c.Dedup.WindowSeconds == 0 {
		c.Dedup.WindowSeconds = 30
	}

	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 100
	}

	if c.Engine.APIKey == "" {
		c.Engine.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Engine.STTModel == "" {
		c.Engine.STTModel = "whisper-1"
	}
	if c.Engine.TranslateModel == "" {
		c.Engine.TranslateModel = "gpt-4o-mini"
	}
	if c.Engine.TTSModel == "" {
		c.Engine.TTSModel = "tts-1"
	}
	if c.Engine.Voice == "" {
		c.Engine.Voice = "alloy"
	}
	if c.Engine.TimeoutSeconds == 0 {
		c.Engine.TimeoutSeconds = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmentation.Validate(); err != nil {
		return fmt.Errorf("segmentation config: %w", err)
	}

	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 24000, 48000], got %d", a.SampleRate)
	}

	if a.FrameQueueSize < 1 {
		return fmt.Errorf("frame_queue_size must be at least 1, got %d", a.FrameQueueSize)
	}

	return nil
}

// Validate validates segmentation configuration
func (s *SegmentationConfig) Validate() error {
	if s.SilenceEnergyThreshold <= 0 {
		return fmt.Errorf("silence_energy_threshold must be positive, got %f", s.SilenceEnergyThreshold)
	}

	if s.SilenceDurationThresholdMs < 1 {
		return fmt.Errorf("silence_duration_threshold_ms must be at least 1, got %d", s.SilenceDurationThresholdMs)
	}

	if s.MinSegmentDurationMs < 1 {
		return fmt.Errorf("min_segment_duration_ms must be at least 1, got %d", s.MinSegmentDurationMs)
	}

	if s.MaxFramesBeforeForce < 1 {
		return fmt.Errorf("max_frames_before_force must be at least 1, got %d", s.MaxFramesBeforeForce)
	}

	if s.AbsoluteTimeoutMs < s.SilenceDurationThresholdMs {
		return fmt.Errorf("absolute_timeout_ms (%d) must be at least silence_duration_threshold_ms (%d)",
			s.AbsoluteTimeoutMs, s.SilenceDurationThresholdMs)
	}

	return nil
}

// Validate validates dedup configuration
func (d *DedupConfig) Validate() error {
	if d.WindowSeconds < 1 {
		return fmt.Errorf("window_seconds must be at least 1, got %d", d.WindowSeconds)
	}

	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set engine.api_key or OPENAI_API_KEY)")
	}

	if e.STTModel == "" {
		return fmt.Errorf("stt_model cannot be empty")
	}

	if e.TranslateModel == "" {
		return fmt.Errorf("translate_model cannot be empty")
	}

	if e.TTSModel == "" {
		return fmt.Errorf("tts_model cannot be empty")
	}

	if e.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	if e.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1, got %d", e.TimeoutSeconds)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSilenceDurationThreshold returns the trailing silence threshold as a time.Duration
func (s *SegmentationConfig) GetSilenceDurationThreshold() time.Duration {
	return time.Duration(s.SilenceDurationThresholdMs) * time.Millisecond
}

// GetMinSegmentDuration returns the minimum segment duration as a time.Duration
func (s *SegmentationConfig) GetMinSegmentDuration() time.Duration {
	return time.Duration(s.MinSegmentDurationMs) * time.Millisecond
}

// GetAbsoluteTimeout returns the absolute flush timeout as a time.Duration
func (s *SegmentationConfig) GetAbsoluteTimeout() time.Duration {
	return time.Duration(s.AbsoluteTimeoutMs) * time.Millisecond
}

// GetWindow returns the dedup window as a time.Duration
func (d *DedupConfig) GetWindow() time.Duration {
	return time.Duration(d.WindowSeconds) * time.Second
}

// GetTimeout returns the engine call timeout as a time.Duration
func (e *EngineConfig) GetTimeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}
