// Package cache provides a bounded least-recently-used cache of synthesized
// speech, keyed by the normalized (text, language, voice) tuple.
package cache
