// Package segment accumulates classified audio frames into utterances.
// An accumulator is owned by exactly one stream processing loop; it decides
// per frame whether the buffered audio should be flushed for transcription.
package segment
