// Package engine provides the speech and translation backends built on the
// OpenAI API: Whisper transcription, chat-completion translation, and TTS
// synthesis.
package engine
