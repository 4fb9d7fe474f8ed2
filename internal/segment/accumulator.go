package segment

import (
	"fmt"
	"time"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
)

// Reason identifies which trigger closed a segment. Every flushed segment
// carries exactly one reason.
type Reason int

const (
	// ReasonForce closes a segment once the frame counter reaches the
	// configured maximum, bounding per-utterance latency under continuous
	// speech.
	ReasonForce Reason = iota + 1

	// ReasonPause closes a segment on a natural pause: the current frame is
	// silence, the segment is long enough, and silence has lasted long
	// enough.
	ReasonPause

	// ReasonTimeout closes a segment when no voice has been heard for the
	// absolute safety bound, guarding against a stuck classifier.
	ReasonTimeout
)

// String returns the reason name used in logs and metric labels.
func (r Reason) String() string {
	switch r {
	case ReasonForce:
		return "force"
	case ReasonPause:
		return "pause"
	case ReasonTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Config contains the segmentation thresholds.
type Config struct {
	SampleRate               int
	MinSegmentDuration       time.Duration // minimum audio before a pause may flush
	SilenceDurationThreshold time.Duration // continuous silence required for a pause flush
	MaxFramesBeforeForce     int           // frame count that forces a flush
	AbsoluteTimeout          time.Duration // maximum time since last voice frame
}

// Segment is one flushed utterance, handed whole to the dispatcher.
type Segment struct {
	SessionID string
	SpeakerID string
	PCM       []byte
	Duration  time.Duration
	Frames    int
	Reason    Reason
	StartedAt time.Time
	EndedAt   time.Time
}

// Accumulator is the per-stream segmentation state machine. It is written to
// only by the stream's own processing loop, so it needs no locking. Time is
// derived from frame timestamps and PCM lengths, never from the wall clock,
// which keeps flush decisions deterministic.
type Accumulator struct {
	config Config

	pcm         []byte
	duration    time.Duration
	frames      int
	silence     time.Duration // continuous silence since the last voice frame
	lastVoiceAt time.Time
	startedAt   time.Time

	// Statistics
	flushed       uint64
	totalDuration time.Duration
}

// NewAccumulator creates an accumulator with the given thresholds.
func NewAccumulator(config Config) *Accumulator {
	return &Accumulator{config: config}
}

// Append adds a classified frame to the buffer and evaluates the flush
// triggers in precedence order: force, pause, timeout. It returns the closed
// segment when one of them fires, nil otherwise. A returned segment always
// contains at least the appended frame; the accumulator resets afterwards so
// no frame can belong to two segments.
func (a *Accumulator) Append(f *audio.Frame, voiced bool) *Segment {
	if a.frames == 0 {
		a.startedAt = f.Timestamp
		// Until voice is heard, the segment start anchors the timeout.
		a.lastVoiceAt = f.Timestamp
	}

	frameDuration := f.Duration(a.config.SampleRate)

	a.pcm = append(a.pcm, f.PCM...)
	a.duration += frameDuration
	a.frames++

	if voiced {
		a.lastVoiceAt = f.Timestamp
		a.silence = 0
	} else {
		a.silence += frameDuration
	}

	switch {
	case a.frames >= a.config.MaxFramesBeforeForce:
		return a.flush(ReasonForce, f.Timestamp)

	case !voiced &&
		a.duration >= a.config.MinSegmentDuration &&
		a.silence >= a.config.SilenceDurationThreshold:
		return a.flush(ReasonPause, f.Timestamp)

	case f.Timestamp.Sub(a.lastVoiceAt) >= a.config.AbsoluteTimeout:
		return a.flush(ReasonTimeout, f.Timestamp)
	}

	return nil
}

// Pending reports whether the accumulator holds unflushed audio.
func (a *Accumulator) Pending() bool {
	return a.frames > 0
}

// PendingDuration returns the duration of the unflushed audio.
func (a *Accumulator) PendingDuration() time.Duration {
	return a.duration
}

// Flushed returns the number of segments flushed so far.
func (a *Accumulator) Flushed() uint64 {
	return a.flushed
}

// Reset discards any buffered audio without flushing. Used when a stream is
// torn down mid-segment.
func (a *Accumulator) Reset() {
	a.pcm = nil
	a.duration = 0
	a.frames = 0
	a.silence = 0
	a.lastVoiceAt = time.Time{}
	a.startedAt = time.Time{}
}

func (a *Accumulator) flush(reason Reason, endedAt time.Time) *Segment {
	seg := &Segment{
		PCM:       a.pcm,
		Duration:  a.duration,
		Frames:    a.frames,
		Reason:    reason,
		StartedAt: a.startedAt,
		EndedAt:   endedAt,
	}

	a.flushed++
	a.totalDuration += a.duration

	a.pcm = nil
	a.duration = 0
	a.frames = 0
	a.silence = 0
	a.lastVoiceAt = time.Time{}
	a.startedAt = time.Time{}

	return seg
}
