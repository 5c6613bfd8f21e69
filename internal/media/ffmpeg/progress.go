package ffmpeg

import (
	"strconv"
	"strings"
)

// ProgressFunc receives a completion percentage in [0, 100].
type ProgressFunc func(percent float64)

// progressTracker parses `-progress pipe:1` key=value lines.
type progressTracker struct {
	duration float64
	report   ProgressFunc
	last     float64
}

func newProgressTracker(durationSec float64, report ProgressFunc) *progressTracker {
	return &progressTracker{duration: durationSec, report: report, last: -1}
}

func (p *progressTracker) line(raw string) {
	if p == nil || p.report == nil {
		return
	}
	key, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		micros, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || p.duration <= 0 {
			return
		}
		p.emit(micros / 1e6 / p.duration * 100)
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.emit(100)
		}
	}
}

func (p *progressTracker) emit(percent float64) {
	percent = max(0, min(percent, 100))
	if percent <= p.last {
		return
	}
	p.last = percent
	p.report(percent)
}
