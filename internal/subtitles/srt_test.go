package subtitles_test

import (
	"strings"
	"testing"

	"reelsmith/internal/subtitles"
)

func TestFormatSingleCue(t *testing.T) {
	cues := subtitles.FromSegments([]subtitles.Span{{Start: 0, End: 2.5, Text: "Hello"}}, subtitles.DefaultOptions())
	got := string(subtitles.Format(cues))
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello\n\n"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, "\n\n") {
		t.Fatalf("Format = %q, want block terminated by a blank line", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{2.5, "00:00:02,500"},
		{61.25, "00:01:01,250"},
		{3725.25, "01:02:05,250"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := subtitles.FormatTimestamp(tt.seconds); got != tt.want {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	input := "1\r\n00:00:01,000 --> 00:00:02,500\r\nFirst line\r\nsecond line\r\n\r\n" +
		"garbage block\n\n" +
		"2\n00:00:03.000 --> 00:00:04,000\nSecond\n"
	cues, err := subtitles.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "First line\nsecond line" || cues[0].Start != 1 || cues[0].End != 2.5 {
		t.Fatalf("unexpected first cue %+v", cues[0])
	}
	again, err := subtitles.Parse(subtitles.Format(cues))
	if err != nil || len(again) != 2 || again[1].Start != 3 {
		t.Fatalf("round trip mismatch: %+v err=%v", again, err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := subtitles.Parse([]byte("not a subtitle\n\nstill not")); err == nil {
		t.Fatal("expected error")
	}
	cues, err := subtitles.Parse([]byte("  \n"))
	if err != nil || cues != nil {
		t.Fatalf("empty input should parse to nothing, got %v %v", cues, err)
	}
}

func TestParseTimestampRejectsOutOfRange(t *testing.T) {
	for _, value := range []string{"00:61:00,000", "00:00:00", "aa:00:00,000", "00:00:00,1000"} {
		if _, err := subtitles.ParseTimestamp(value); err == nil {
			t.Fatalf("ParseTimestamp(%q) should fail", value)
		}
	}
}

func TestValidate(t *testing.T) {
	if issues := subtitles.Validate(nil, 0); len(issues) != 1 || issues[0] != "empty_subtitle_file" {
		t.Fatalf("unexpected issues %v", issues)
	}
	cues := []subtitles.Cue{
		{Start: 0, End: 2, Text: "a"},
		{Start: 1, End: 3, Text: "b"},
		{Start: 3, End: 3, Text: " "},
	}
	issues := subtitles.Validate(cues, 1)
	joined := strings.Join(issues, "|")
	for _, want := range []string{"overlap", "non_positive_duration", "empty_text", "duration_mismatch"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %s in %v", want, issues)
		}
	}
}
