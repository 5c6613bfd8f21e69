package subtitles

import (
	"strings"
	"testing"
)

func TestFromSegmentsSplitsLongSpans(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 40)) // 199 runes
	cues := FromSegments([]Span{{Start: 10, End: 20, Text: text}}, Options{MaxLineChars: 20, MaxLines: 2})
	if len(cues) < 5 {
		t.Fatalf("expected the span to split into several cues, got %d", len(cues))
	}
	if cues[0].Start != 10 || cues[len(cues)-1].End != 20 {
		t.Fatalf("cues must cover the span: %+v .. %+v", cues[0], cues[len(cues)-1])
	}
	for i, cue := range cues {
		if cue.Index != i+1 {
			t.Fatalf("cue %d has index %d", i, cue.Index)
		}
		lines := strings.Split(cue.Text, "\n")
		if len(lines) > 2 {
			t.Fatalf("cue %d has %d lines", i, len(lines))
		}
		for _, line := range lines {
			if len(line) > 20 {
				t.Fatalf("line too long: %q", line)
			}
		}
		if i > 0 && cue.Start < cues[i-1].End {
			t.Fatalf("cue %d overlaps previous", i)
		}
	}
}

func TestFromSegmentsOrdersAndSettlesOverlaps(t *testing.T) {
	cues := FromSegments([]Span{
		{Start: 2, End: 4, Text: "second"},
		{Start: 0, End: 2.5, Text: "first"},
		{Start: 5, End: 5.1, Text: "blink"},
		{Start: 5.3, End: 6, Text: "after"},
	}, DefaultOptions())
	if len(cues) != 4 || cues[0].Text != "first" || cues[1].Text != "second" {
		t.Fatalf("unexpected cues %+v", cues)
	}
	if cues[1].Start != 2.5 {
		t.Fatalf("overlap not settled: %+v", cues[1])
	}
	if cues[2].End != 5.3 {
		t.Fatalf("short cue should extend up to the next cue: %+v", cues[2])
	}
	if cues[3].End-cues[3].Start < 0.8-1e-9 {
		t.Fatalf("last cue should be extended to the minimum: %+v", cues[3])
	}
}

func TestFromSegmentsDropsNoise(t *testing.T) {
	cues := FromSegments([]Span{
		{Start: 0, End: 2, Text: "Real dialogue"},
		{Start: 3, End: 4, Text: "♪ ♪"},
		{Start: 5, End: 6, Text: "Subtitles by the Amara.org community"},
		{Start: 60, End: 61, Text: "Thanks for watching!"},
		{Start: 100, End: 101, Text: "  "},
	}, DefaultOptions())
	if len(cues) != 1 || cues[0].Text != "Real dialogue" {
		t.Fatalf("unexpected cues %+v", cues)
	}
}

func TestFromSegmentsFoldsWidth(t *testing.T) {
	cues := FromSegments([]Span{{Start: 0, End: 1, Text: "Ｈｅｌｌｏ　world"}}, DefaultOptions())
	if len(cues) != 1 || cues[0].Text != "Hello world" {
		t.Fatalf("unexpected cues %+v", cues)
	}
}
