package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"reelsmith/internal/language"
	"reelsmith/internal/services"
)

// Result is the decoded `ffprobe -show_format -show_streams -of json` payload.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Duration     string            `json:"duration"`
	BitRate      string            `json:"bit_rate"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	SampleRate   string            `json:"sample_rate"`
	Channels     int               `json:"channels"`
	Tags         map[string]string `json:"tags"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Info is the probe summary stored on file references.
type Info struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Format          string  `json:"format"`
	BitRate         int64   `json:"bitRate"`
	FPS             float64 `json:"fps"`
	SizeBytes       int64   `json:"sizeBytes"`
	HasAudio        bool    `json:"hasAudio"`
	// AudioLanguage is the two-letter language of the first audio stream,
	// empty when the container does not tag it.
	AudioLanguage string `json:"audioLanguage,omitempty"`
}

// Inspect runs ffprobe against path. Failures carry ffprobe's own output and
// are marked as gateway failures.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "", "ffprobe", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, services.Wrap(services.ErrGateway, "", "ffprobe", detail, err)
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, services.Wrap(services.ErrGateway, "", "ffprobe", "parse output", err)
	}
	return result, nil
}

// Probe inspects path and summarizes it.
func Probe(ctx context.Context, binary, path string) (Info, error) {
	result, err := Inspect(ctx, binary, path)
	if err != nil {
		return Info{}, err
	}
	return result.Info(), nil
}

// Info summarizes the first video stream and the container.
func (r Result) Info() Info {
	info := Info{
		DurationSeconds: r.DurationSeconds(),
		Format:          r.ShortFormat(),
		BitRate:         r.BitRate(),
		SizeBytes:       r.SizeBytes(),
		HasAudio:        r.AudioStreamCount() > 0,
	}
	if math.IsNaN(info.DurationSeconds) {
		info.DurationSeconds = 0
	}
	if audio, ok := r.firstStream("audio"); ok {
		if tag := language.ExtractFromTags(audio.Tags); tag != "" && tag != "und" {
			info.AudioLanguage = language.Normalize(tag)
		}
	}
	if video, ok := r.firstStream("video"); ok {
		info.Width = video.Width
		info.Height = video.Height
		info.FPS = parseRate(video.AvgFrameRate)
		if info.FPS == 0 {
			info.FPS = parseRate(video.RFrameRate)
		}
		if info.DurationSeconds == 0 {
			if d := parseFloat(video.Duration); !math.IsNaN(d) {
				info.DurationSeconds = d
			}
		}
	}
	return info
}

// ShortFormat returns the first name of the comma separated format list,
// e.g. "mov,mp4,m4a,3gp" becomes "mov".
func (r Result) ShortFormat() string {
	name, _, _ := strings.Cut(r.Format.FormatName, ",")
	return strings.TrimSpace(name)
}

func (r Result) firstStream(codecType string) (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			return stream, true
		}
	}
	return Stream{}, false
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, 0 when absent
// and NaN when malformed.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// parseRate reads ffprobe's "num/den" frame rates.
func parseRate(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		v := parseFloat(num)
		if math.IsNaN(v) {
			return 0
		}
		return v
	}
	n, errN := strconv.ParseFloat(num, 64)
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return math.Round(n/d*1000) / 1000
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

func (i Info) String() string {
	return fmt.Sprintf("%s %dx%d %.2fs @ %.3f fps", i.Format, i.Width, i.Height, i.DurationSeconds, i.FPS)
}
