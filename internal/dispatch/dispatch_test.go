package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/cache"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dedup"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/roster"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/segment"
)

type staticRoster struct {
	participants []roster.Participant
	err          error
}

func (s *staticRoster) Participants(ctx context.Context, sessionID string) ([]roster.Participant, error) {
	return s.participants, s.err
}

// fakeEngines counts calls and produces deterministic outputs so tests can
// verify exactly how much work each dispatch performed.
type fakeEngines struct {
	mu sync.Mutex

	transcript    string
	transcribeErr error
	translateErr  map[string]error
	synthErr      map[string]error

	transcribeCalls int
	translateCalls  map[string]int
	synthCalls      map[string]int
}

func newFakeEngines(transcript string) *fakeEngines {
	return &fakeEngines{
		transcript:     transcript,
		translateErr:   make(map[string]error),
		synthErr:       make(map[string]error),
		translateCalls: make(map[string]int),
		synthCalls:     make(map[string]int),
	}
}

func (f *fakeEngines) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribeCalls++
	return f.transcript, f.transcribeErr
}

func (f *fakeEngines) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translateCalls[targetLang]++
	if err := f.translateErr[targetLang]; err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

func (f *fakeEngines) Synthesize(ctx context.Context, text, language, voice string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls[language]++
	if err := f.synthErr[language]; err != nil {
		return nil, err
	}
	return []byte("audio:" + language + ":" + text), nil
}

func (f *fakeEngines) totalTranslateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.translateCalls {
		total += n
	}
	return total
}

func (f *fakeEngines) totalSynthCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.synthCalls {
		total += n
	}
	return total
}

type fakePublisher struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, sessionID string, result *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.results = append(p.results, result)
	return nil
}

func (p *fakePublisher) byLanguage() map[string]*Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*Result, len(p.results))
	for _, r := range p.results {
		out[r.Language] = r
	}
	return out
}

func multipartyCall() *staticRoster {
	return &staticRoster{participants: []roster.Participant{
		{UserID: "alice", Language: "en", Connected: true},
		{UserID: "bob", Language: "es", Connected: true},
		{UserID: "carol", Language: "es", Connected: true},
		{UserID: "dave", Language: "fr", Connected: true},
	}}
}

func newTestDispatcher(r roster.Roster, engines *fakeEngines, publisher Publisher) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		Config{SampleRate: 16000, Voice: "v1"},
		roster.NewResolver(r),
		dedup.New(30*time.Second),
		cache.New(100),
		engines, engines, engines, publisher,
		logger, nil,
	)
}

func testSegment() *segment.Segment {
	return &segment.Segment{
		PCM:      make([]byte, 3200),
		Duration: 100 * time.Millisecond,
		Frames:   1,
		Reason:   segment.ReasonPause,
	}
}

func TestFanOutCounts(t *testing.T) {
	engines := newFakeEngines("good morning")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	// Three recipients across two languages.
	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if engines.transcribeCalls != 1 {
		t.Errorf("Expected exactly 1 transcription call, got %d", engines.transcribeCalls)
	}
	if engines.totalTranslateCalls() != 2 {
		t.Errorf("Expected exactly 2 translate calls, got %d", engines.totalTranslateCalls())
	}
	if engines.totalSynthCalls() > 2 {
		t.Errorf("Expected at most 2 synthesize calls, got %d", engines.totalSynthCalls())
	}

	results := publisher.byLanguage()
	if len(results) != 2 {
		t.Fatalf("Expected 2 published results, got %d", len(results))
	}

	if !reflect.DeepEqual(results["es"].Recipients, []string{"bob", "carol"}) {
		t.Errorf("Expected es recipients [bob carol], got %v", results["es"].Recipients)
	}
	if !reflect.DeepEqual(results["fr"].Recipients, []string{"dave"}) {
		t.Errorf("Expected fr recipients [dave], got %v", results["fr"].Recipients)
	}

	for _, lang := range []string{"es", "fr"} {
		if results[lang].SourceText != "good morning" {
			t.Errorf("Expected source text preserved for %s, got %q", lang, results[lang].SourceText)
		}
		if results[lang].SpeakerID != "alice" {
			t.Errorf("Expected speaker alice for %s, got %q", lang, results[lang].SpeakerID)
		}
	}
}

func TestNoRecipientsIncursNoCost(t *testing.T) {
	engines := newFakeEngines("hello")
	publisher := &fakePublisher{}
	d := newTestDispatcher(&staticRoster{participants: []roster.Participant{
		{UserID: "alice", Language: "en", Connected: true},
	}}, engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if engines.transcribeCalls != 0 {
		t.Errorf("Expected no transcription without recipients, got %d calls", engines.transcribeCalls)
	}
	if len(publisher.results) != 0 {
		t.Errorf("Expected no published results, got %d", len(publisher.results))
	}
}

func TestEmptyTranscriptDiscarded(t *testing.T) {
	engines := newFakeEngines("   \n  ")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if engines.totalTranslateCalls() != 0 {
		t.Errorf("Whitespace-only transcript should not be translated, got %d calls", engines.totalTranslateCalls())
	}
	if len(publisher.results) != 0 {
		t.Errorf("Expected no published results, got %d", len(publisher.results))
	}
}

func TestTranscriptionFailureDropsSegment(t *testing.T) {
	engines := newFakeEngines("unused")
	engines.transcribeErr = errors.New("stt unavailable")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if engines.totalTranslateCalls() != 0 {
		t.Error("Failed transcription should not reach translation")
	}
	if len(publisher.results) != 0 {
		t.Errorf("Expected no published results, got %d", len(publisher.results))
	}
}

func TestRosterErrorDropsSegment(t *testing.T) {
	engines := newFakeEngines("hello")
	publisher := &fakePublisher{}
	d := newTestDispatcher(&staticRoster{err: errors.New("roster down")}, engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if engines.transcribeCalls != 0 {
		t.Error("Roster failure should drop the segment before transcription")
	}
}

func TestDuplicateTranscriptSuppressed(t *testing.T) {
	engines := newFakeEngines("same thing")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())
	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	// Both segments are transcribed, but only the first fans out.
	if engines.transcribeCalls != 2 {
		t.Errorf("Expected 2 transcription calls, got %d", engines.transcribeCalls)
	}
	if engines.totalTranslateCalls() != 2 {
		t.Errorf("Expected translate calls only for the first dispatch, got %d", engines.totalTranslateCalls())
	}
	if len(publisher.results) != 2 {
		t.Errorf("Expected 2 published results, got %d", len(publisher.results))
	}
}

func TestEndStreamClearsDedupState(t *testing.T) {
	engines := newFakeEngines("same thing")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())
	d.EndStream("s1", "alice")
	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	// After EndStream the same phrase fans out again.
	if engines.totalTranslateCalls() != 4 {
		t.Errorf("Expected 4 translate calls across both dispatches, got %d", engines.totalTranslateCalls())
	}
}

func TestBranchIsolationOnTranslateFailure(t *testing.T) {
	engines := newFakeEngines("hello everyone")
	engines.translateErr["fr"] = errors.New("translator overloaded")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	results := publisher.byLanguage()
	if _, ok := results["fr"]; ok {
		t.Error("Failed fr branch should publish nothing")
	}

	es, ok := results["es"]
	if !ok {
		t.Fatal("es branch should be unaffected by the fr failure")
	}
	if !reflect.DeepEqual(es.Recipients, []string{"bob", "carol"}) {
		t.Errorf("Expected es recipients [bob carol], got %v", es.Recipients)
	}
}

func TestBranchIsolationOnSynthesisFailure(t *testing.T) {
	engines := newFakeEngines("hello everyone")
	engines.synthErr["es"] = errors.New("tts unavailable")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	results := publisher.byLanguage()
	if _, ok := results["es"]; ok {
		t.Error("Failed es branch should publish nothing")
	}
	if _, ok := results["fr"]; !ok {
		t.Error("fr branch should be unaffected by the es failure")
	}
}

func TestCacheHitSkipsTranslateAndSynthesize(t *testing.T) {
	engines := newFakeEngines("shared phrase")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	// Alice says the phrase, warming the cache for es and fr.
	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	// Bob says the identical phrase: dedup is per speaker, the cache is
	// shared, so no further engine work is needed for fr.
	bobRoster := &staticRoster{participants: []roster.Participant{
		{UserID: "alice", Language: "en", Connected: true},
		{UserID: "bob", Language: "es", Connected: true},
		{UserID: "dave", Language: "fr", Connected: true},
	}}
	d2 := New(
		Config{SampleRate: 16000, Voice: "v1"},
		roster.NewResolver(bobRoster),
		d.dedup, d.cache,
		engines, engines, engines, publisher,
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil,
	)
	d2.Dispatch(context.Background(), "s1", "bob", testSegment())

	if engines.translateCalls["fr"] != 1 {
		t.Errorf("Expected cached fr translation to be reused, got %d translate calls", engines.translateCalls["fr"])
	}
	if engines.synthCalls["fr"] != 1 {
		t.Errorf("Expected cached fr audio to be reused, got %d synthesize calls", engines.synthCalls["fr"])
	}

	// The cached result still carries the translated text.
	var frResults []*Result
	publisher.mu.Lock()
	for _, r := range publisher.results {
		if r.Language == "fr" {
			frResults = append(frResults, r)
		}
	}
	publisher.mu.Unlock()

	if len(frResults) != 2 {
		t.Fatalf("Expected 2 fr results, got %d", len(frResults))
	}
	if frResults[0].TranslatedText != frResults[1].TranslatedText || frResults[1].TranslatedText == "" {
		t.Error("Cache hit should reproduce the translated text")
	}
	if !bytes.Equal(frResults[0].Audio, frResults[1].Audio) {
		t.Error("Cache hit should reproduce the synthesized audio")
	}
}

func TestEndToEndMultipartyScenario(t *testing.T) {
	// Speaker alice, recipients bob:es, carol:es, dave:fr.
	engines := newFakeEngines("let us begin")
	publisher := &fakePublisher{}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	results := publisher.byLanguage()
	if len(results) != 2 {
		t.Fatalf("Expected exactly two branches (es, fr), got %d", len(results))
	}

	es, fr := results["es"], results["fr"]

	// bob and carol share one result, so their audio is identical by
	// construction; dave's differs.
	if bytes.Equal(es.Audio, fr.Audio) {
		t.Error("es and fr audio should differ")
	}

	recipients := make(map[string]string)
	for _, r := range publisher.results {
		for _, id := range r.Recipients {
			recipients[id] = r.Language
		}
	}

	if recipients["bob"] != "es" || recipients["carol"] != "es" {
		t.Errorf("bob and carol should receive es, got %v", recipients)
	}
	if recipients["dave"] != "fr" {
		t.Errorf("dave should receive fr, got %v", recipients)
	}
	if _, ok := recipients["alice"]; ok {
		t.Error("The speaker must not receive their own translation")
	}
}

func TestPublishFailureIsolated(t *testing.T) {
	engines := newFakeEngines("hello")
	publisher := &fakePublisher{err: errors.New("sink closed")}
	d := newTestDispatcher(multipartyCall(), engines, publisher)

	// Must not panic or propagate; both branches simply fail.
	d.Dispatch(context.Background(), "s1", "alice", testSegment())

	if len(publisher.results) != 0 {
		t.Errorf("Expected no stored results on publish failure, got %d", len(publisher.results))
	}
}
