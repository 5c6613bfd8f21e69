// Package llm provides an OpenAI-compatible chat client (OpenRouter by
// default) used for script enhancement and summaries.
//
// Every request asks for a JSON object; DecodeLLMJSON tolerates code fences
// and leading prose. Failed calls are retried on HTTP 408/429/5xx, network
// errors and empty completions using services.RetryPolicy (three attempts,
// 500ms doubling to at most 4s). Context cancellation stops retries at once.
//
// The client returns configuration errors when no API key is set; the
// generative gateway decides whether to use it or the deterministic fallback.
package llm
