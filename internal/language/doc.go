// Package language normalizes the language labels reported by speech
// providers and media containers ("english", "eng", "en-US") to the
// two-letter codes stored on transcripts.
package language
