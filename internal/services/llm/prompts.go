package llm

// EnhanceScriptPrompt asks for a cleaned-up script plus a list of edits.
const EnhanceScriptPrompt = `You edit spoken video transcripts into clear narration scripts.
Remove filler words, false starts and repetition. Fix grammar and punctuation.
Keep the speaker's meaning, voice and language. Do not add new facts.
Respond with JSON only: {"enhanced_text": "<script>", "improvements": ["<short description of each kind of edit>"]}`

// SummarizePrompt asks for a two to three sentence summary.
const SummarizePrompt = `Summarize the following video script in two or three sentences, in the script's language.
Respond with JSON only: {"summary": "<summary>"}`
