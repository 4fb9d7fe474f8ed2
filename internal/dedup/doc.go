// Package dedup suppresses re-processing of transcripts a speaker just
// produced, bounding memory through strict age-window eviction.
package dedup
