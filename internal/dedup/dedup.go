package dedup

import (
	"strings"
	"sync"
	"time"
)

// speakerKey scopes dedup state to one speaker within one session.
type speakerKey struct {
	sessionID string
	speakerID string
}

// Deduplicator tracks recently seen transcripts per (session, speaker).
// Entries older than the window are evicted on every lookup, strictly by
// age, so an old phrase can never displace a still-relevant one.
type Deduplicator struct {
	window   time.Duration
	speakers map[speakerKey]map[string]time.Time
	now      func() time.Time

	// Statistics
	suppressed uint64
	inserted   uint64

	mu sync.Mutex
}

// Stats represents deduplicator statistics.
type Stats struct {
	TrackedSpeakers int    `json:"tracked_speakers"`
	Suppressed      uint64 `json:"suppressed"`
	Inserted        uint64 `json:"inserted"`
}

// New creates a deduplicator with the given age window.
func New(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window:   window,
		speakers: make(map[speakerKey]map[string]time.Time),
		now:      time.Now,
	}
}

// IsDuplicate reports whether the speaker produced the same normalized text
// within the window. The evict-check-insert sequence runs under one lock
// hold, so two concurrent calls with the same text cannot both observe
// "not duplicate".
func (d *Deduplicator) IsDuplicate(sessionID, speakerID, text string) bool {
	normalized := Normalize(text)
	key := speakerKey{sessionID, speakerID}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-d.window)

	entries, ok := d.speakers[key]
	if ok {
		for phrase, seenAt := range entries {
			if seenAt.Before(cutoff) {
				delete(entries, phrase)
			}
		}
	} else {
		entries = make(map[string]time.Time)
		d.speakers[key] = entries
	}

	if _, seen := entries[normalized]; seen {
		d.suppressed++
		return true
	}

	entries[normalized] = now
	d.inserted++
	return false
}

// Forget drops all state for a speaker. Called when their stream is torn
// down.
func (d *Deduplicator) Forget(sessionID, speakerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.speakers, speakerKey{sessionID, speakerID})
}

// GetStats returns a snapshot of deduplicator statistics.
func (d *Deduplicator) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		TrackedSpeakers: len(d.speakers),
		Suppressed:      d.suppressed,
		Inserted:        d.inserted,
	}
}

// Normalize trims and case-folds text so trivially different renderings of
// the same phrase compare equal.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
