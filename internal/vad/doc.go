// Package vad provides per-frame voice activity classification based on
// RMS signal energy. Each speaker stream owns its own classifier so that
// activity statistics stay per-stream.
package vad
