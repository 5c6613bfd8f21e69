// Package speech talks to an OpenAI-compatible audio API: multipart
// transcription with segment timestamps and text-to-speech synthesis.
//
// Both calls share the services.RetryPolicy used by the llm client, so 429 and
// 5xx responses are retried with bounded backoff before surfacing as gateway
// failures.
package speech
