package vad

import (
	"encoding/binary"
	"testing"
)

// pcmWithAmplitude builds a square wave of the given amplitude, which has an
// RMS energy equal to the amplitude itself.
func pcmWithAmplitude(amplitude int16, samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(500)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	if c.Threshold() != 500 {
		t.Errorf("Expected threshold 500, got %f", c.Threshold())
	}

	if _, err := NewClassifier(-1); err == nil {
		t.Error("Expected error for negative threshold")
	}

	// A zero threshold would classify all-zero frames as voice.
	if _, err := NewClassifier(0); err == nil {
		t.Error("Expected error for zero threshold")
	}
}

func TestClassifyVoiceAndSilence(t *testing.T) {
	c, err := NewClassifier(500)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	tests := []struct {
		name      string
		pcm       []byte
		wantVoice bool
	}{
		{"loud frame", pcmWithAmplitude(4000, 160), true},
		{"quiet frame", pcmWithAmplitude(100, 160), false},
		{"digital silence", make([]byte, 320), false},
		{"empty frame", nil, false},
		{"amplitude at threshold", pcmWithAmplitude(500, 160), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.pcm); got != tt.wantVoice {
				t.Errorf("Classify() = %v, want %v (energy %f)", got, tt.wantVoice, Energy(tt.pcm))
			}
		})
	}
}

func TestClassifierStats(t *testing.T) {
	c, err := NewClassifier(500)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	c.Classify(pcmWithAmplitude(4000, 160))
	c.Classify(pcmWithAmplitude(4000, 160))
	c.Classify(make([]byte, 320))
	c.Classify(make([]byte, 320))

	stats := c.GetStats()
	if stats.TotalFrames != 4 {
		t.Errorf("Expected 4 total frames, got %d", stats.TotalFrames)
	}
	if stats.VoiceFrames != 2 {
		t.Errorf("Expected 2 voice frames, got %d", stats.VoiceFrames)
	}
	if stats.VoicePercentage != 50 {
		t.Errorf("Expected 50%% voice, got %f", stats.VoicePercentage)
	}
}

func TestEnergy(t *testing.T) {
	// Constant-amplitude square wave: RMS equals the amplitude.
	pcm := pcmWithAmplitude(1000, 160)
	energy := Energy(pcm)
	if energy < 999 || energy > 1001 {
		t.Errorf("Expected energy ~1000, got %f", energy)
	}

	if Energy(nil) != 0 {
		t.Errorf("Expected zero energy for empty input, got %f", Energy(nil))
	}
}
