package stream

import (
	"context"
	"log/slog"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/segment"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/vad"
)

// Dispatcher receives flushed segments and is told when a stream ends so it
// can drop per-speaker state.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, speakerID string, seg *segment.Segment)
	EndStream(sessionID, speakerID string)
}

// PipelineConfig bundles the per-stream processing parameters.
type PipelineConfig struct {
	SilenceEnergyThreshold float64
	Segmentation           segment.Config
}

// Pipeline builds the processing loop run inside every live stream: classify
// each frame, accumulate it, and hand flushed segments to the dispatcher.
// Dispatch is awaited before the next frame is read, so one speaker's
// utterances are always published in arrival order; other speakers' loops
// run independently and are never stalled by it.
type Pipeline struct {
	config     PipelineConfig
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewPipeline creates a pipeline. The energy threshold is validated here so
// a bad configuration fails at startup rather than on the first frame.
func NewPipeline(config PipelineConfig, dispatcher Dispatcher, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if _, err := vad.NewClassifier(config.SilenceEnergyThreshold); err != nil {
		return nil, err
	}

	return &Pipeline{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Run is the LoopFunc for the registry. Each stream gets its own classifier
// and accumulator; both are touched only by this goroutine. Cancellation
// discards the in-flight segment.
func (p *Pipeline) Run(ctx context.Context, key Key, frames <-chan *audio.Frame) {
	classifier, err := vad.NewClassifier(p.config.SilenceEnergyThreshold)
	if err != nil {
		// Threshold was validated in NewPipeline.
		p.logger.Error("Failed to create classifier", slog.String("error", err.Error()))
		return
	}

	acc := segment.NewAccumulator(p.config.Segmentation)

	defer p.dispatcher.EndStream(key.SessionID, key.SpeakerID)

	for {
		select {
		case <-ctx.Done():
			if acc.Pending() {
				p.logger.Debug("Discarding in-flight segment on stream teardown",
					slog.String("session_id", key.SessionID),
					slog.String("speaker_id", key.SpeakerID),
					slog.Duration("pending", acc.PendingDuration()),
				)
			}
			return

		case f, ok := <-frames:
			if !ok {
				return
			}

			p.metrics.RecordFrameReceived()
			voiced := classifier.Classify(f.PCM)

			seg := acc.Append(f, voiced)
			if seg == nil {
				continue
			}

			seg.SessionID = key.SessionID
			seg.SpeakerID = key.SpeakerID

			p.metrics.RecordSegmentFlushed(seg.Reason.String(), seg.Duration.Seconds())
			p.logger.Debug("Segment flushed",
				slog.String("session_id", key.SessionID),
				slog.String("speaker_id", key.SpeakerID),
				slog.String("reason", seg.Reason.String()),
				slog.Duration("duration", seg.Duration),
				slog.Int("frames", seg.Frames),
			)

			// Awaited on purpose: in-order publication per speaker.
			p.dispatcher.Dispatch(ctx, key.SessionID, key.SpeakerID, seg)
		}
	}
}
