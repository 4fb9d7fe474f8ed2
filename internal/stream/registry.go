package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
)

// Key identifies one speaker's stream within one session.
type Key struct {
	SessionID string
	SpeakerID string
}

// LoopFunc is the processing loop run for each live stream. It must return
// when ctx is cancelled or the frame channel is closed.
type LoopFunc func(ctx context.Context, key Key, frames <-chan *audio.Frame)

// Handle is one live stream: its identity, its input queue and its
// processing goroutine. Exactly one live handle exists per key; a handle
// whose loop has returned is dead and gets replaced atomically on the next
// Acquire.
type Handle struct {
	Key       Key
	CreatedAt time.Time

	frames chan *audio.Frame
	cancel context.CancelFunc
	done   chan struct{}

	// lastActivity is guarded by the registry mutex.
	lastActivity time.Time
}

// Dead reports whether the handle's processing loop has finished.
func (h *Handle) Dead() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// HandleInfo is a point-in-time view of a live stream for monitoring.
type HandleInfo struct {
	SessionID    string    `json:"session_id"`
	SpeakerID    string    `json:"speaker_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	QueuedFrames int       `json:"queued_frames"`
}

// Registry is the thread-safe directory of live streams. One registry-wide
// mutex serializes all map access; every operation is O(1) map work plus a
// non-blocking channel interaction, so the lock is never held across I/O.
type Registry struct {
	handles   map[Key]*Handle
	queueSize int
	loop      LoopFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	mu sync.Mutex
}

// NewRegistry creates a registry whose streams run the given loop with
// input queues of the given size.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics, queueSize int, loop LoopFunc) *Registry {
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		handles:   make(map[Key]*Handle),
		queueSize: queueSize,
		loop:      loop,
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Acquire returns the live handle for the key, creating one if none exists.
// When the existing handle's loop has finished, it is removed and replaced
// inside the same critical section: no concurrent caller can observe the key
// as absent between removal and creation.
func (r *Registry) Acquire(sessionID, speakerID string) *Handle {
	key := Key{SessionID: sessionID, SpeakerID: speakerID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	if h, ok := r.handles[key]; ok {
		if !h.Dead() {
			return h
		}
		delete(r.handles, key)
	}

	h := r.startLocked(key)
	r.handles[key] = h
	return h
}

// Enqueue pushes a frame into the stream for the key. It performs its own
// lookup and returns false when no live handle exists; callers must not
// pre-check existence themselves. A full queue drops the frame rather than
// blocking the ingestion path.
func (r *Registry) Enqueue(sessionID, speakerID string, f *audio.Frame) bool {
	key := Key{SessionID: sessionID, SpeakerID: speakerID}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok || h.Dead() {
		return false
	}

	select {
	case h.frames <- f:
		h.lastActivity = f.Timestamp
	default:
		r.metrics.RecordFrameDropped()
		r.logger.Warn("Dropping frame, stream queue full",
			slog.String("session_id", sessionID),
			slog.String("speaker_id", speakerID),
		)
	}

	return true
}

// Release tears down the stream for the key. It is idempotent: releasing an
// unknown or already-released key is a no-op. The loop's pending engine
// calls are cancelled through its context.
func (r *Registry) Release(sessionID, speakerID string) {
	key := Key{SessionID: sessionID, SpeakerID: speakerID}

	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	h.cancel()

	r.logger.Info("Stream released",
		slog.String("session_id", sessionID),
		slog.String("speaker_id", speakerID),
		slog.Duration("lifetime", time.Since(h.CreatedAt)),
	)
}

// Count returns the number of registered streams.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Snapshot returns monitoring information for all registered streams.
func (r *Registry) Snapshot() []HandleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]HandleInfo, 0, len(r.handles))
	for key, h := range r.handles {
		infos = append(infos, HandleInfo{
			SessionID:    key.SessionID,
			SpeakerID:    key.SpeakerID,
			CreatedAt:    h.CreatedAt,
			LastActivity: h.lastActivity,
			QueuedFrames: len(h.frames),
		})
	}

	return infos
}

// Close releases every stream and waits for all processing loops to finish.
// The registry accepts no new streams afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for key := range r.handles {
		delete(r.handles, key)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	r.logger.Info("Stream registry closed")
}

// startLocked constructs a handle and starts its loop. The caller holds the
// registry mutex, so the handle is never visible without its goroutine:
// starting a goroutine is scheduling, not awaiting, and is safe under the
// lock.
func (r *Registry) startLocked(key Key) *Handle {
	ctx, cancel := context.WithCancel(r.ctx)
	now := time.Now()

	h := &Handle{
		Key:          key,
		CreatedAt:    now,
		lastActivity: now,
		frames:       make(chan *audio.Frame, r.queueSize),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	r.metrics.RecordStreamCreated()
	r.wg.Add(1)

	go func() {
		defer func() {
			close(h.done)
			r.metrics.RecordStreamClosed(time.Since(h.CreatedAt).Seconds())
			r.wg.Done()
		}()
		r.loop(ctx, key, h.frames)
	}()

	r.logger.Info("Stream created",
		slog.String("session_id", key.SessionID),
		slog.String("speaker_id", key.SpeakerID),
	)

	return h
}
