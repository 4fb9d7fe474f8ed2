package stream

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/segment"
)

// recordingDispatcher captures dispatched segments and tracks whether two
// dispatches for the same stream ever overlap.
type recordingDispatcher struct {
	delay time.Duration

	mu       sync.Mutex
	segments []*segment.Segment
	ended    []Key

	active    int32
	maxActive int32
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, sessionID, speakerID string, seg *segment.Segment) {
	n := atomic.AddInt32(&d.active, 1)
	for {
		max := atomic.LoadInt32(&d.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&d.maxActive, max, n) {
			break
		}
	}

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	d.segments = append(d.segments, seg)
	d.mu.Unlock()

	atomic.AddInt32(&d.active, -1)
}

func (d *recordingDispatcher) EndStream(sessionID, speakerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ended = append(d.ended, Key{SessionID: sessionID, SpeakerID: speakerID})
}

func (d *recordingDispatcher) dispatched() []*segment.Segment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*segment.Segment(nil), d.segments...)
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SilenceEnergyThreshold: 500,
		Segmentation: segment.Config{
			SampleRate:               16000,
			MinSegmentDuration:       500 * time.Millisecond,
			SilenceDurationThreshold: 300 * time.Millisecond,
			MaxFramesBeforeForce:     2,
			AbsoluteTimeout:          time.Second,
		},
	}
}

// voicedPCM builds a 50ms square wave well above the energy threshold.
func voicedPCM() []byte {
	const samples = 800 // 50ms at 16kHz
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(4000)
		if i%2 == 1 {
			v = -4000
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func voicedFrameAt(base time.Time, index int) *audio.Frame {
	return &audio.Frame{
		PCM:       voicedPCM(),
		Timestamp: base.Add(time.Duration(index) * 50 * time.Millisecond),
	}
}

func runPipeline(t *testing.T, ctx context.Context, p *Pipeline, key Key, frames <-chan *audio.Frame) <-chan struct{} {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, key, frames)
	}()
	return done
}

func TestPipelineDispatchesSegmentsInOrder(t *testing.T) {
	// A slow dispatcher makes any overlap between consecutive dispatches
	// observable.
	dispatcher := &recordingDispatcher{delay: 10 * time.Millisecond}
	p, err := NewPipeline(testPipelineConfig(), dispatcher, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	key := Key{SessionID: "s1", SpeakerID: "alice"}
	frames := make(chan *audio.Frame, 8)

	// Six voiced frames with a force limit of two per segment: three
	// flushes in a fixed order.
	base := time.Now()
	for i := 0; i < 6; i++ {
		frames <- voicedFrameAt(base, i)
	}
	close(frames)

	done := runPipeline(t, context.Background(), p, key, frames)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pipeline did not finish after the frame channel closed")
	}

	segments := dispatcher.dispatched()
	if len(segments) != 3 {
		t.Fatalf("Expected 3 dispatched segments, got %d", len(segments))
	}

	for i, seg := range segments {
		if seg.SessionID != "s1" || seg.SpeakerID != "alice" {
			t.Errorf("Segment %d attributed to %s/%s, want s1/alice", i, seg.SessionID, seg.SpeakerID)
		}
		if seg.Frames != 2 {
			t.Errorf("Segment %d has %d frames, want 2", i, seg.Frames)
		}
		if seg.Reason != segment.ReasonForce {
			t.Errorf("Segment %d flushed for %v, want force", i, seg.Reason)
		}

		// Arrival order: each segment starts where the previous ended.
		want := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if !seg.StartedAt.Equal(want) {
			t.Errorf("Segment %d started at %v, want %v", i, seg.StartedAt, want)
		}
	}

	if max := atomic.LoadInt32(&dispatcher.maxActive); max != 1 {
		t.Errorf("Dispatches overlapped (max concurrency %d); the loop must await each one", max)
	}

	if len(dispatcher.ended) != 1 || dispatcher.ended[0] != key {
		t.Errorf("Expected exactly one EndStream for %v, got %v", key, dispatcher.ended)
	}
}

func TestPipelineTeardownDiscardsPendingSegment(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	p, err := NewPipeline(testPipelineConfig(), dispatcher, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	key := Key{SessionID: "s1", SpeakerID: "alice"}
	ctx, cancel := context.WithCancel(context.Background())

	// Unbuffered: the send below returns only once the loop has consumed
	// the frame, so exactly one frame is pending when cancellation hits.
	frames := make(chan *audio.Frame)
	done := runPipeline(t, ctx, p, key, frames)

	frames <- voicedFrameAt(time.Now(), 0)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pipeline did not stop on cancellation")
	}

	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Errorf("Pending segment should be discarded on teardown, got %d dispatches", len(got))
	}
	if len(dispatcher.ended) != 1 || dispatcher.ended[0] != key {
		t.Errorf("Expected exactly one EndStream for %v, got %v", key, dispatcher.ended)
	}
}

func TestNewPipelineRejectsBadThreshold(t *testing.T) {
	dispatcher := &recordingDispatcher{}

	for _, threshold := range []float64{0, -5} {
		config := testPipelineConfig()
		config.SilenceEnergyThreshold = threshold
		if _, err := NewPipeline(config, dispatcher, testLogger(), nil); err == nil {
			t.Errorf("Expected error for threshold %f", threshold)
		}
	}
}
