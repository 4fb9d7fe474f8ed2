package audio

import (
	"time"
)

// Frame is one frame of raw PCM audio (16-bit little-endian, mono) received
// from a participant. Frames are owned by the ingestion path until they are
// enqueued into a speaker's stream; after that only the processing loop
// touches them.
type Frame struct {
	SessionID string
	SpeakerID string
	PCM       []byte
	Timestamp time.Time
}

// Duration returns the playback duration of the frame's PCM payload at the
// given sample rate.
func (f *Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 || len(f.PCM) < 2 {
		return 0
	}
	samples := len(f.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Samples decodes the frame's PCM payload into int16 samples.
func (f *Frame) Samples() []int16 {
	n := len(f.PCM) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(f.PCM[i*2]) | int16(f.PCM[i*2+1])<<8
	}
	return samples
}
