package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
)

// Config contains the engine connection parameters.
type Config struct {
	APIKey         string
	BaseURL        string // empty means the default OpenAI endpoint
	STTModel       string
	TranslateModel string
	TTSModel       string
	Timeout        time.Duration // per API call
}

// OpenAI implements transcription, translation, and synthesis against the
// OpenAI API. A single instance is shared by every dispatch branch; the
// underlying client is safe for concurrent use.
type OpenAI struct {
	client  *openai.Client
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewOpenAI creates an engine. BaseURL may point at any OpenAI-compatible
// server, which is how local and self-hosted backends are wired in.
func NewOpenAI(config Config, logger *slog.Logger, m *metrics.Metrics) (*OpenAI, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("engine: API key is required")
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("engine: timeout must be positive, got %v", config.Timeout)
	}

	var client *openai.Client
	if config.BaseURL != "" {
		clientConfig := openai.DefaultConfig(config.APIKey)
		clientConfig.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(config.APIKey)
	}

	return &OpenAI{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: m,
	}, nil
}

// Transcribe converts one segment of raw PCM to text. The PCM is wrapped in
// a WAV container because the transcription endpoint only accepts audio
// files, not raw sample streams.
func (e *OpenAI) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	wavData, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    e.config.STTModel,
		Reader:   bytes.NewReader(wavData),
		FilePath: "segment.wav",
	}

	start := time.Now()
	resp, err := e.client.CreateTranscription(ctx, req)
	e.metrics.RecordEngineCall("transcribe", time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	e.logger.Debug("Transcribed segment",
		slog.Int("pcm_bytes", len(pcm)),
		slog.Duration("took", time.Since(start)),
	)
	return resp.Text, nil
}

// Translate converts text from sourceLang to targetLang. Temperature is
// pinned to zero so repeated utterances translate identically, which keeps
// the synthesis cache effective.
func (e *OpenAI) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	systemPrompt := fmt.Sprintf(
		"You are a translator for a live voice call. Translate the user's message from %s to %s. "+
			"Reply with the translation only, no quotes or commentary. Preserve the speaker's tone.",
		sourceLang, targetLang)

	req := openai.ChatCompletionRequest{
		Model: e.config.TranslateModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	e.metrics.RecordEngineCall("translate", time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("openai translation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translation: no response choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Synthesize renders translated text as speech audio.
func (e *OpenAI) Synthesize(ctx context.Context, text, language, voice string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := openai.CreateSpeechRequest{
		Model: openai.SpeechModel(e.config.TTSModel),
		Input: text,
		Voice: openai.SpeechVoice(voice),
	}

	start := time.Now()
	resp, err := e.client.CreateSpeech(ctx, req)
	e.metrics.RecordEngineCall("synthesize", time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("openai synthesis: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}

	e.logger.Debug("Synthesized audio",
		slog.String("language", language),
		slog.Int("bytes", len(audioData)),
		slog.Duration("took", time.Since(start)),
	)
	return audioData, nil
}
