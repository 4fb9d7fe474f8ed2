// Package dispatch orchestrates the fan-out of one flushed utterance:
// a single transcription, then one concurrent translate-and-synthesize
// branch per target language, each isolated from its siblings.
package dispatch
