// Package stream owns the lifecycle of per-speaker processing streams.
// The registry guarantees exactly one live stream per (session, speaker) and
// is the single authority every other component consults for liveness.
package stream
