package subtitles

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Cue is one numbered subtitle entry.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Duration returns the on-screen time of the cue.
func (c Cue) Duration() float64 { return c.End - c.Start }

// Format renders cues as SRT. Cues are numbered from 1 in slice order,
// whatever their Index fields hold, and every block ends with a blank line.
func Format(cues []Cue) []byte {
	var buf bytes.Buffer
	for i, cue := range cues {
		fmt.Fprintf(&buf, "%d\n", i+1)
		fmt.Fprintf(&buf, "%s --> %s\n", FormatTimestamp(cue.Start), FormatTimestamp(cue.End))
		buf.WriteString(strings.TrimSpace(cue.Text))
		buf.WriteString("\n\n")
	}
	return buf.Bytes()
}

// Parse reads SRT content. Malformed blocks are skipped; an error is returned
// only when non-empty input yields no cues at all.
func Parse(data []byte) ([]Cue, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	blocks := splitBlocks(content)
	if len(blocks) == 0 {
		return nil, nil
	}
	cues := make([]Cue, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		startText, endText, ok := strings.Cut(lines[1], "-->")
		if !ok {
			continue
		}
		start, err := ParseTimestamp(startText)
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(endText)
		if err != nil {
			continue
		}
		text := make([]string, 0, len(lines)-2)
		for _, line := range lines[2:] {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				text = append(text, trimmed)
			}
		}
		cues = append(cues, Cue{Index: index, Start: start, End: end, Text: strings.Join(text, "\n")})
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("parse srt: no valid cues in %d blocks", len(blocks))
	}
	return cues, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm, clamping negatives to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp reads HH:MM:SS,mmm. A period is accepted in place of the comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	clock, millisText, ok := strings.Cut(value, ",")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(millisText)
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if minutes > 59 || seconds > 59 || millis > 999 || hours < 0 || minutes < 0 || seconds < 0 || millis < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

func splitBlocks(content string) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "\n\n")
	blocks := raw[:0]
	for _, block := range raw {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// Validate reports format problems: no cues, inverted or overlapping timing,
// and cues running past the end of the video when its length is known.
func Validate(cues []Cue, videoSeconds float64) []string {
	if len(cues) == 0 {
		return []string{"empty_subtitle_file"}
	}
	var issues []string
	for i, cue := range cues {
		if cue.End <= cue.Start {
			issues = append(issues, fmt.Sprintf("non_positive_duration: cue %d", i+1))
		}
		if i > 0 && cue.Start < cues[i-1].End {
			issues = append(issues, fmt.Sprintf("overlap: cue %d starts before cue %d ends", i+1, i))
		}
		if strings.TrimSpace(cue.Text) == "" {
			issues = append(issues, fmt.Sprintf("empty_text: cue %d", i+1))
		}
	}
	if videoSeconds > 0 {
		if last := cues[len(cues)-1].End; last > videoSeconds+durationTolerance {
			issues = append(issues, fmt.Sprintf("duration_mismatch: delta=%.1fs", last-videoSeconds))
		}
	}
	return issues
}

const durationTolerance = 1.0
