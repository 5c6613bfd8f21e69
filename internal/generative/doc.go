// Package generative is the AI side of the pipeline: transcription, script
// enhancement, voice synthesis and summaries behind one Gateway interface.
//
// Two implementations exist. Live calls the configured llm and speech
// providers. Fallback answers every call deterministically without network
// access, and Live delegates to it for any capability whose provider has no
// credentials. Callers never need to special-case a missing provider.
package generative
