// Package audio defines the raw PCM frame type shared by the ingestion and
// segmentation paths, along with duration math and WAV encoding for the
// speech-to-text engine.
package audio
