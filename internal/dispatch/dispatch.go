package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/cache"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dedup"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/roster"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/segment"
)

// Transcriber converts an audio segment to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Synthesizer renders text to speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voice string) ([]byte, error)
}

// Publisher delivers one translation result to its recipients. The
// dispatcher's responsibility ends at a successful call.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, result *Result) error
}

// Result is one utterance translated into one target language, addressed to
// every recipient configured for that language.
type Result struct {
	SessionID      string    `json:"session_id"`
	SpeakerID      string    `json:"speaker_id"`
	Language       string    `json:"language"`
	Recipients     []string  `json:"recipients"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	Audio          []byte    `json:"audio"`
	CreatedAt      time.Time `json:"created_at"`
}

// Config contains dispatcher parameters.
type Config struct {
	SampleRate int
	Voice      string // synthesis voice applied to every branch
}

// Dispatcher runs the multiparty fan-out. One Dispatch call performs at most
// one transcription; translation and synthesis run once per distinct target
// language regardless of how many recipients share it.
type Dispatcher struct {
	config   Config
	resolver *roster.Resolver
	dedup    *dedup.Deduplicator
	cache    *cache.Cache

	transcriber Transcriber
	translator  Translator
	synthesizer Synthesizer
	publisher   Publisher

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a dispatcher.
func New(config Config, resolver *roster.Resolver, d *dedup.Deduplicator, c *cache.Cache,
	transcriber Transcriber, translator Translator, synthesizer Synthesizer, publisher Publisher,
	logger *slog.Logger, m *metrics.Metrics) *Dispatcher {

	return &Dispatcher{
		config:      config,
		resolver:    resolver,
		dedup:       d,
		cache:       c,
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
	}
}

// Dispatch processes one flushed segment end to end. Failures drop the
// segment or a single language branch; they never propagate to the caller,
// so a stream's processing loop survives every failed utterance.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, speakerID string, seg *segment.Segment) {
	resolution, err := d.resolver.Resolve(ctx, sessionID, speakerID)
	if err != nil {
		d.metrics.RecordSegmentDiscarded("roster_error")
		d.logger.Error("Roster lookup failed, dropping segment",
			slog.String("session_id", sessionID),
			slog.String("speaker_id", speakerID),
			slog.String("error", err.Error()),
		)
		return
	}

	// Nobody to deliver to: skip before any engine cost is incurred.
	if len(resolution.Groups) == 0 {
		d.metrics.RecordSegmentDiscarded("no_recipients")
		return
	}

	transcript, err := d.transcriber.Transcribe(ctx, seg.PCM, d.config.SampleRate)
	if err != nil {
		d.metrics.RecordTranscription(false)
		d.metrics.RecordSegmentDiscarded("transcription_failed")
		d.logger.Error("Transcription failed, dropping segment",
			slog.String("session_id", sessionID),
			slog.String("speaker_id", speakerID),
			slog.Duration("segment_duration", seg.Duration),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.RecordTranscription(true)

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		d.metrics.RecordSegmentDiscarded("empty_transcript")
		return
	}

	if d.dedup.IsDuplicate(sessionID, speakerID, transcript) {
		d.metrics.RecordDuplicateSuppressed()
		d.metrics.RecordSegmentDiscarded("duplicate")
		d.logger.Debug("Duplicate transcript suppressed",
			slog.String("session_id", sessionID),
			slog.String("speaker_id", speakerID),
		)
		return
	}

	var wg sync.WaitGroup
	for language, recipients := range resolution.Groups {
		wg.Add(1)
		go func(language string, recipients []string) {
			defer wg.Done()
			d.runBranch(ctx, sessionID, speakerID, resolution.SourceLanguage, language, recipients, transcript)
		}(language, recipients)
	}
	wg.Wait()
}

// EndStream drops per-speaker dispatch state when their stream is torn down.
func (d *Dispatcher) EndStream(sessionID, speakerID string) {
	d.dedup.Forget(sessionID, speakerID)
}

// runBranch translates and synthesizes one utterance for one target
// language, then publishes the result to that language's recipients.
// A failure here affects only this branch.
func (d *Dispatcher) runBranch(ctx context.Context, sessionID, speakerID, sourceLang, language string, recipients []string, transcript string) {
	d.metrics.RecordBranch(language)

	audioBytes, translated, hit := d.cache.Get(transcript, language, d.config.Voice)
	d.metrics.RecordCacheLookup(hit)

	if !hit {
		var err error
		translated, err = d.translator.Translate(ctx, transcript, sourceLang, language)
		if err != nil {
			d.metrics.RecordBranchFailure(language)
			d.logger.Error("Translation failed, branch dropped",
				slog.String("session_id", sessionID),
				slog.String("speaker_id", speakerID),
				slog.String("language", language),
				slog.String("error", err.Error()),
			)
			return
		}

		audioBytes, err = d.synthesizer.Synthesize(ctx, translated, language, d.config.Voice)
		if err != nil {
			d.metrics.RecordBranchFailure(language)
			d.logger.Error("Synthesis failed, branch dropped",
				slog.String("session_id", sessionID),
				slog.String("speaker_id", speakerID),
				slog.String("language", language),
				slog.String("error", err.Error()),
			)
			return
		}

		d.cache.Put(transcript, language, d.config.Voice, translated, audioBytes)
	}

	result := &Result{
		SessionID:      sessionID,
		SpeakerID:      speakerID,
		Language:       language,
		Recipients:     recipients,
		SourceText:     transcript,
		TranslatedText: translated,
		Audio:          audioBytes,
		CreatedAt:      time.Now(),
	}

	if err := d.publisher.Publish(ctx, sessionID, result); err != nil {
		d.metrics.RecordResultPublished(false)
		d.metrics.RecordBranchFailure(language)
		d.logger.Error("Publish failed, branch dropped",
			slog.String("session_id", sessionID),
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		return
	}

	d.metrics.RecordResultPublished(true)
}
