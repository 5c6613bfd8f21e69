package subtitles

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Span is a timed piece of recognized speech.
type Span struct {
	Start float64
	End   float64
	Text  string
}

// Options bounds cue layout.
type Options struct {
	MaxLineChars int
	MaxLines     int
	// MinDuration extends short cues when the following cue leaves room.
	MinDuration float64
}

// DefaultOptions follows common broadcast guidance: two lines of 42 characters.
func DefaultOptions() Options {
	return Options{MaxLineChars: 42, MaxLines: 2, MinDuration: 0.8}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MaxLineChars <= 0 {
		o.MaxLineChars = def.MaxLineChars
	}
	if o.MaxLines <= 0 {
		o.MaxLines = def.MaxLines
	}
	if o.MinDuration < 0 {
		o.MinDuration = 0
	}
	return o
}

// FromSegments converts speech spans into ordered, non-overlapping cues.
// Spans longer than one cue's capacity are split at word boundaries with time
// shared in proportion to text length. Empty spans, music-only spans and
// hallucinated filler are dropped. The same input always yields the same cues.
func FromSegments(spans []Span, opts Options) []Cue {
	opts = opts.normalized()

	cleaned := make([]Span, 0, len(spans))
	for _, span := range spans {
		text := normalizeSpanText(span.Text)
		if text == "" || span.End < span.Start {
			continue
		}
		cleaned = append(cleaned, Span{Start: max(0, span.Start), End: span.End, Text: text})
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].Start < cleaned[j].Start })
	cleaned = dropHallucinations(cleaned)

	capacity := opts.MaxLineChars * opts.MaxLines
	var cues []Cue
	for _, span := range cleaned {
		chunks := chunkWords(strings.Fields(span.Text), capacity)
		total := 0
		for _, chunk := range chunks {
			total += utf8.RuneCountInString(chunk)
		}
		cursor := span.Start
		duration := span.End - span.Start
		for i, chunk := range chunks {
			end := span.End
			if i < len(chunks)-1 && total > 0 {
				end = cursor + duration*float64(utf8.RuneCountInString(chunk))/float64(total)
			}
			cues = append(cues, Cue{Start: cursor, End: end, Text: wrapLines(chunk, opts.MaxLineChars)})
			cursor = end
		}
	}
	return settle(cues, opts.MinDuration)
}

// settle removes overlaps, applies the minimum duration where the next cue
// allows it, and numbers the cues.
func settle(cues []Cue, minDuration float64) []Cue {
	for i := range cues {
		if i > 0 && cues[i].Start < cues[i-1].End {
			cues[i].Start = cues[i-1].End
		}
		if cues[i].End-cues[i].Start < minDuration {
			limit := cues[i].Start + minDuration
			if i+1 < len(cues) && cues[i+1].Start < limit {
				limit = max(cues[i+1].Start, cues[i].End)
			}
			cues[i].End = limit
		}
		if cues[i].End <= cues[i].Start {
			cues[i].End = cues[i].Start + 0.001
		}
		cues[i].Index = i + 1
	}
	return cues
}

func normalizeSpanText(text string) string {
	return strings.Join(strings.Fields(width.Fold.String(text)), " ")
}

// chunkWords groups words into pieces of at most capacity runes. A single
// word longer than capacity becomes its own chunk.
func chunkWords(words []string, capacity int) []string {
	var (
		chunks  []string
		current []string
		size    int
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if len(current) > 0 && size+1+n > capacity {
			chunks = append(chunks, strings.Join(current, " "))
			current, size = nil, 0
		}
		if len(current) > 0 {
			size++
		}
		current = append(current, word)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// wrapLines breaks text into lines of at most limit runes.
func wrapLines(text string, limit int) string {
	words := strings.Fields(text)
	var (
		lines   []string
		current strings.Builder
	)
	for _, word := range words {
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(word) > limit {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n")
}
