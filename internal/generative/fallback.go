package generative

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"

	"reelsmith/internal/language"
	"reelsmith/internal/stage"
)

// Fallback produces deterministic results without any provider. The same
// input always yields the same output.
type Fallback struct{}

// NewFallback constructs the deterministic gateway.
func NewFallback() *Fallback {
	return &Fallback{}
}

func (f *Fallback) Mode() Mode { return ModeFallback }

func (f *Fallback) Health(context.Context) stage.Health {
	return stage.Health{Name: healthName, Ready: true, Detail: string(ModeFallback)}
}

var placeholderLines = []string{
	"Um, so this is a placeholder transcript.",
	"No speech provider is configured, basically.",
	"Add a speech API key to transcribe the real audio.",
}

const placeholderSegmentSeconds = 3.0

// Transcribe returns a fixed three-segment transcript at three seconds per
// segment. Confidence is zero because nothing was recognized.
func (f *Fallback) Transcribe(_ context.Context, _ []byte, _ string) (Transcription, error) {
	segments := make([]Segment, len(placeholderLines))
	for i, line := range placeholderLines {
		segments[i] = Segment{
			ID:       i,
			Text:     line,
			StartSec: float64(i) * placeholderSegmentSeconds,
			EndSec:   float64(i+1) * placeholderSegmentSeconds,
		}
	}
	return Transcription{
		Text:     strings.Join(placeholderLines, " "),
		Segments: segments,
		Language: language.Default,
	}, nil
}

// EnhanceScript removes filler words, repeated words and tidies sentence
// boundaries. Improvements always has at least one entry.
func (f *Fallback) EnhanceScript(_ context.Context, text, _ string) (Enhancement, error) {
	result := f.clean(text)
	improvements := result.improvements()
	if len(improvements) == 0 {
		if result.text == "" {
			improvements = []string{"No content to enhance"}
		} else {
			improvements = []string{"No filler words found; text left unchanged"}
		}
	}
	return Enhancement{EnhancedText: result.text, Improvements: improvements}, nil
}

const summaryLimit = 200

// Summarize returns the leading sentences of the cleaned text, up to about
// 200 characters.
func (f *Fallback) Summarize(_ context.Context, text string) (string, error) {
	cleaned := f.clean(text).text
	if cleaned == "" {
		return "", nil
	}
	sentences := splitSentences(cleaned)
	var b strings.Builder
	for _, sentence := range sentences {
		if b.Len() > 0 && b.Len()+1+len(sentence) > summaryLimit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}
	return b.String(), nil
}

// SynthesizeVoice returns silent WAV audio whose length follows the word
// count, so downstream mixing still sees a plausible voiceover track.
func (f *Fallback) SynthesizeVoice(_ context.Context, text, _ string) (Voice, error) {
	words := len(strings.Fields(text))
	return Voice{Audio: silentWAV(speechSeconds(words)), Format: "wav"}, nil
}

var (
	fillerWords = map[string]struct{}{
		"um": {}, "umm": {}, "uh": {}, "uhh": {}, "uhm": {}, "er": {}, "erm": {},
		"ah": {}, "hmm": {}, "mm": {}, "basically": {}, "literally": {}, "actually": {},
	}
	// Only filler when they open a sentence.
	leadingFillers = map[string]struct{}{
		"so": {}, "well": {}, "like": {}, "okay": {}, "ok": {}, "anyway": {},
	}
	fillerPhrases = [][]string{{"you", "know"}, {"i", "mean"}}
)

type cleanResult struct {
	text        string
	removed     []string
	repeats     bool
	capitalized bool
	punctuated  bool
}

func (r cleanResult) improvements() []string {
	var out []string
	if len(r.removed) > 0 {
		out = append(out, "Removed filler words: "+strings.Join(r.removed, ", "))
	}
	if r.repeats {
		out = append(out, "Removed repeated words")
	}
	if r.capitalized {
		out = append(out, "Capitalized sentence starts")
	}
	if r.punctuated {
		out = append(out, "Added closing punctuation")
	}
	return out
}

func (f *Fallback) clean(text string) cleanResult {
	tokens := strings.Fields(text)
	// Casers keep state, so each call gets its own.
	title := cases.Title(xlanguage.English, cases.NoLower)
	var (
		result       cleanResult
		kept         = make([]string, 0, len(tokens))
		seen         = map[string]bool{}
		sentenceOpen = true
	)
	noteRemoved := func(word string) {
		if !seen[word] {
			seen[word] = true
			result.removed = append(result.removed, word)
		}
	}
	carryTerminal := func(token string) {
		if !endsSentence(token) || len(kept) == 0 || endsSentence(kept[len(kept)-1]) {
			return
		}
		last := len(kept) - 1
		kept[last] = strings.TrimRight(kept[last], ",;:") + string(token[len(token)-1])
		sentenceOpen = true
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		core := coreWord(token)

		if n := matchPhrase(tokens[i:]); n > 0 {
			noteRemoved(strings.Join(fillerPhrases[phraseIndex(tokens[i:])], " "))
			carryTerminal(tokens[i+n-1])
			i += n - 1
			continue
		}
		if _, ok := fillerWords[core]; ok {
			noteRemoved(core)
			carryTerminal(token)
			continue
		}
		if _, ok := leadingFillers[core]; ok && sentenceOpen {
			noteRemoved(core)
			carryTerminal(token)
			continue
		}
		if len(kept) > 0 && !sentenceOpen {
			prev := kept[len(kept)-1]
			if core != "" && coreWord(prev) == core && prev == strings.TrimRight(prev, ".,!?;:") {
				result.repeats = true
				kept[len(kept)-1] = prev + token[len(strings.TrimRight(token, ".,!?;:")):]
				sentenceOpen = endsSentence(kept[len(kept)-1])
				continue
			}
		}
		if sentenceOpen {
			if titled := title.String(token); titled != token {
				token = titled
				result.capitalized = true
			}
		}
		kept = append(kept, token)
		sentenceOpen = endsSentence(token)
	}

	if len(kept) > 0 && !endsSentence(kept[len(kept)-1]) {
		last := len(kept) - 1
		kept[last] = strings.TrimRight(kept[last], ",;:") + "."
		result.punctuated = true
	}
	result.text = strings.Join(kept, " ")
	return result
}

func matchPhrase(tokens []string) int {
	if idx := phraseIndex(tokens); idx >= 0 {
		return len(fillerPhrases[idx])
	}
	return 0
}

func phraseIndex(tokens []string) int {
	for idx, phrase := range fillerPhrases {
		if len(tokens) < len(phrase) {
			continue
		}
		match := true
		for j, word := range phrase {
			core := coreWord(tokens[j])
			// Interior tokens must not end a clause, "you, know" is not the phrase.
			if core != word || (j < len(phrase)-1 && core != strings.ToLower(tokens[j])) {
				match = false
				break
			}
		}
		if match {
			return idx
		}
	}
	return -1
}

func coreWord(token string) string {
	return strings.ToLower(strings.Trim(token, ".,!?;:\"'()"))
}

func endsSentence(token string) bool {
	return strings.HasSuffix(token, ".") || strings.HasSuffix(token, "!") || strings.HasSuffix(token, "?")
}

func splitSentences(text string) []string {
	var (
		out     []string
		current []string
	)
	for _, token := range strings.Fields(text) {
		current = append(current, token)
		if endsSentence(token) {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// speechSeconds estimates narration length at 150 words per minute,
// bounded to one second minimum and five minutes maximum.
func speechSeconds(words int) float64 {
	seconds := float64(words) * 0.4
	return max(1, min(seconds, 300))
}
