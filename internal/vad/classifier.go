package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Classifier decides whether a single PCM frame carries voice or silence by
// comparing its RMS energy against a configured threshold.
type Classifier struct {
	threshold float64 // RMS energy threshold on int16 samples

	// Statistics
	totalFrames  uint64
	voiceFrames  uint64
	lastEnergy   float64
	lastDecision bool
	lastFrameAt  time.Time

	mu sync.RWMutex
}

// Stats represents classifier statistics for one stream.
type Stats struct {
	TotalFrames     uint64    `json:"total_frames"`
	VoiceFrames     uint64    `json:"voice_frames"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastEnergy      float64   `json:"last_energy"`
	Threshold       float64   `json:"threshold"`
	LastFrameAt     time.Time `json:"last_frame_at"`
}

// NewClassifier creates a classifier with the given RMS energy threshold.
// Int16 PCM yields energies in [0, 32768); typical telephony speech sits
// well above a threshold of a few hundred. The threshold must be strictly
// positive: at zero, an all-zero frame would classify as voice and silence
// could never be detected.
func NewClassifier(threshold float64) (*Classifier, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("energy threshold must be positive, got %f", threshold)
	}

	return &Classifier{threshold: threshold}, nil
}

// Classify reports whether the frame carries voice. Empty or truncated
// frames are classified as silence.
func (c *Classifier) Classify(pcm []byte) bool {
	energy := Energy(pcm)

	c.mu.Lock()
	defer c.mu.Unlock()

	voiced := energy >= c.threshold && len(pcm) >= 2

	c.totalFrames++
	if voiced {
		c.voiceFrames++
	}
	c.lastEnergy = energy
	c.lastDecision = voiced
	c.lastFrameAt = time.Now()

	return voiced
}

// Energy computes the RMS energy of 16-bit little-endian mono PCM.
func Energy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}

	return math.Sqrt(sum / float64(n))
}

// GetStats returns a snapshot of classifier statistics.
func (c *Classifier) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	voicePercentage := float64(0)
	if c.totalFrames > 0 {
		voicePercentage = float64(c.voiceFrames) / float64(c.totalFrames) * 100
	}

	return Stats{
		TotalFrames:     c.totalFrames,
		VoiceFrames:     c.voiceFrames,
		VoicePercentage: voicePercentage,
		LastEnergy:      c.lastEnergy,
		Threshold:       c.threshold,
		LastFrameAt:     c.lastFrameAt,
	}
}

// Threshold returns the configured energy threshold.
func (c *Classifier) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}
