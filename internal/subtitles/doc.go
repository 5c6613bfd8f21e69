// Package subtitles turns transcript segments into caption cues and encodes
// them as SRT, the only timed-text format the pipeline exports.
//
// FromSegments wraps long segments into readable cues, drops the filler
// phrases speech models hallucinate over silence, and guarantees cues are
// ordered and non-overlapping. Format and Parse round-trip SRT text.
package subtitles
