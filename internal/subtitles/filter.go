package subtitles

import (
	"regexp"
	"strings"
	"unicode"
)

// Phrases speech models emit over silence or music, in normalized form.
var hallucinationPhrases = map[string]bool{
	"thank you":              true,
	"thank you for watching": true,
	"thanks for watching":    true,
	"please subscribe":       true,
	"like and subscribe":     true,
	"bye":                    true,
	"bye bye":                true,
	"see you next time":      true,
}

var creditPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)subtitles? by`),
	regexp.MustCompile(`(?i)amara\.org`),
	regexp.MustCompile(`(?i)http(s)?://`),
	regexp.MustCompile(`(?i)\bwww\.`),
}

var normalizeRe = regexp.MustCompile(`[^a-z0-9\s]`)

const (
	isolationGapSeconds = 30.0
	repeatGapSeconds    = 10.0
)

// dropHallucinations removes credit lines, music-only spans, isolated filler
// phrases, and runs of three or more identical spans separated by long gaps.
func dropHallucinations(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	remove := make([]bool, len(spans))
	markRepeated(spans, remove)

	for i, span := range spans {
		if remove[i] {
			continue
		}
		if isMusicOnly(span.Text) || isCreditLine(span.Text) {
			remove[i] = true
			continue
		}
		isolated := gapBefore(spans, i) >= isolationGapSeconds && gapAfter(spans, i) >= isolationGapSeconds
		if isolated && hallucinationPhrases[normalizeText(span.Text)] {
			remove[i] = true
		}
	}

	kept := spans[:0]
	for i, span := range spans {
		if !remove[i] {
			kept = append(kept, span)
		}
	}
	return kept
}

func markRepeated(spans []Span, remove []bool) {
	i := 0
	for i < len(spans) {
		norm := normalizeText(spans[i].Text)
		if norm == "" {
			i++
			continue
		}
		runEnd := i + 1
		for runEnd < len(spans) {
			if normalizeText(spans[runEnd].Text) != norm {
				break
			}
			if spans[runEnd].Start-spans[runEnd-1].End <= repeatGapSeconds {
				break
			}
			runEnd++
		}
		if runEnd-i >= 3 {
			for j := i; j < runEnd; j++ {
				remove[j] = true
			}
		}
		i = runEnd
	}
}

func gapBefore(spans []Span, i int) float64 {
	if i == 0 {
		return spans[i].Start
	}
	return spans[i].Start - spans[i-1].End
}

func gapAfter(spans []Span, i int) float64 {
	if i >= len(spans)-1 {
		return 1e9
	}
	return spans[i+1].Start - spans[i].End
}

func normalizeText(s string) string {
	s = normalizeRe.ReplaceAllString(strings.ToLower(s), "")
	return strings.Join(strings.Fields(s), " ")
}

func isMusicOnly(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		switch {
		case r == '¶', r == '♪', r == '♫', r == '*':
		case unicode.IsSpace(r):
		default:
			return false
		}
	}
	return true
}

func isCreditLine(text string) bool {
	for _, pattern := range creditPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
