package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// Prober inspects a media file.
type Prober func(ctx context.Context, path string) (ffprobe.Info, error)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithProber replaces ffprobe (primarily for tests).
func WithProber(p Prober) Option {
	return func(c *Client) {
		if p != nil {
			c.probe = p
		}
	}
}

// Client runs ffmpeg operations.
type Client struct {
	binary      string
	probeBinary string
	exec        Executor
	probe       Prober
}

// New constructs a client. Empty binaries default to ffmpeg and ffprobe on PATH.
func New(binary, probeBinary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	probeBinary = strings.TrimSpace(probeBinary)
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}
	c := &Client{binary: binary, probeBinary: probeBinary, exec: commandExecutor{}}
	c.probe = func(ctx context.Context, path string) (ffprobe.Info, error) {
		return ffprobe.Probe(ctx, c.probeBinary, path)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AudioOptions selects the extracted audio encoding.
type AudioOptions struct {
	Format  string
	Bitrate string
}

// RenderOptions controls the final render. Zero values keep the source's
// resolution and frame rate.
type RenderOptions struct {
	Width         int
	Height        int
	FPS           int
	Bitrate       string
	Codec         string
	ForceStyle    string
	VoiceoverPath string
	// MixOriginal keeps the source audio under the voiceover; otherwise the
	// voiceover replaces it.
	MixOriginal bool
}

// ConvertOptions controls a generic conversion.
type ConvertOptions struct {
	Format     string
	VideoCodec string
	AudioCodec string
	Bitrate    string
	ExtraArgs  []string
}

// Thumbnail is one extracted frame.
type Thumbnail struct {
	Path    string
	TimeSec float64
}

// Probe returns duration, resolution, format, bitrate and fps for path.
func (c *Client) Probe(ctx context.Context, path string) (ffprobe.Info, error) {
	if err := requireFile(path); err != nil {
		return ffprobe.Info{}, err
	}
	return c.probe(ctx, path)
}

// ExtractAudio writes the audio track of in to out.
func (c *Client) ExtractAudio(ctx context.Context, in, out string, opts AudioOptions, progress ProgressFunc) error {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "mp3"
	}
	codec, ok := audioCodecs[format]
	if !ok {
		return services.Wrap(services.ErrValidation, "", "extract_audio", fmt.Sprintf("unsupported audio format %q", format), nil)
	}
	args := []string{"-i", in, "-vn", "-acodec", codec}
	if bitrate := strings.TrimSpace(opts.Bitrate); bitrate != "" && format != "wav" {
		args = append(args, "-b:a", bitrate)
	}
	args = append(args, out)
	return c.run(ctx, "extract_audio", in, out, args, progress)
}

var audioCodecs = map[string]string{
	"mp3":  "libmp3lame",
	"wav":  "pcm_s16le",
	"m4a":  "aac",
	"aac":  "aac",
	"flac": "flac",
	"ogg":  "libvorbis",
}

// Thumbnails grabs count evenly spaced frames into outDir as thumb_NNN.jpg.
// Frame i is taken at the middle of the i-th of count equal slices.
func (c *Client) Thumbnails(ctx context.Context, in, outDir string, count int, progress ProgressFunc) ([]Thumbnail, error) {
	if count <= 0 {
		return nil, services.Wrap(services.ErrValidation, "", "thumbnails", "count must be positive", nil)
	}
	info, err := c.Probe(ctx, in)
	if err != nil {
		return nil, err
	}
	if info.DurationSeconds <= 0 {
		return nil, services.Wrap(services.ErrGateway, "", "thumbnails", "input has no duration", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	slice := info.DurationSeconds / float64(count)
	thumbs := make([]Thumbnail, 0, count)
	for i := range count {
		ts := slice*float64(i) + slice/2
		out := filepath.Join(outDir, fmt.Sprintf("thumb_%03d.jpg", i+1))
		if err := c.FrameAt(ctx, in, out, ts); err != nil {
			return nil, err
		}
		thumbs = append(thumbs, Thumbnail{Path: out, TimeSec: ts})
		if progress != nil {
			progress(float64(i+1) / float64(count) * 100)
		}
	}
	return thumbs, nil
}

// FrameAt writes the single frame at timestampSec to out.
func (c *Client) FrameAt(ctx context.Context, in, out string, timestampSec float64) error {
	if timestampSec < 0 {
		timestampSec = 0
	}
	args := []string{"-ss", formatSeconds(timestampSec), "-i", in, "-frames:v", "1", "-q:v", "2", out}
	return c.run(ctx, "frame_at", in, out, args, nil)
}

// RenderWithCaptions burns subtitlePath into in and writes out, optionally
// mixing in a voiceover track.
func (c *Client) RenderWithCaptions(ctx context.Context, in, out, subtitlePath string, opts RenderOptions, progress ProgressFunc) error {
	if err := requireFile(subtitlePath); err != nil {
		return err
	}
	videoFilter := "subtitles=" + quoteFilterArg(subtitlePath)
	if style := strings.TrimSpace(opts.ForceStyle); style != "" {
		videoFilter += ":force_style=" + quoteFilterArg(style)
	}
	if opts.Width > 0 && opts.Height > 0 {
		videoFilter += fmt.Sprintf(",scale=%d:%d", opts.Width, opts.Height)
	}

	args := []string{"-i", in}
	if opts.VoiceoverPath != "" {
		if err := requireFile(opts.VoiceoverPath); err != nil {
			return err
		}
		args = append(args, "-i", opts.VoiceoverPath)
		graph := "[0:v]" + videoFilter + "[v]"
		audioLabel := "1:a:0"
		if opts.MixOriginal {
			graph += ";[0:a][1:a]amix=inputs=2:duration=first:dropout_transition=0[a]"
			audioLabel = "[a]"
		}
		args = append(args, "-filter_complex", graph, "-map", "[v]", "-map", audioLabel, "-shortest")
	} else {
		args = append(args, "-vf", videoFilter, "-map", "0:v:0", "-map", "0:a?")
	}

	codec := strings.TrimSpace(opts.Codec)
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-c:v", codec)
	if bitrate := strings.TrimSpace(opts.Bitrate); bitrate != "" {
		args = append(args, "-b:v", bitrate)
	}
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FPS))
	}
	args = append(args, "-c:a", "aac", "-movflags", "+faststart", out)
	return c.run(ctx, "render", in, out, args, progress)
}

// MergeAudioVideo replaces the audio of video with audio, copying the video stream.
func (c *Client) MergeAudioVideo(ctx context.Context, video, audio, out string, progress ProgressFunc) error {
	if err := requireFile(audio); err != nil {
		return err
	}
	args := []string{"-i", video, "-i", audio, "-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac", "-shortest", out}
	return c.run(ctx, "merge", video, out, args, progress)
}

// Convert transcodes in to out.
func (c *Client) Convert(ctx context.Context, in, out string, opts ConvertOptions, progress ProgressFunc) error {
	args := []string{"-i", in}
	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	}
	if opts.AudioCodec != "" {
		args = append(args, "-c:a", opts.AudioCodec)
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:v", opts.Bitrate)
	}
	args = append(args, opts.ExtraArgs...)
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	args = append(args, out)
	return c.run(ctx, "convert", in, out, args, progress)
}

// Health reports whether the ffmpeg and ffprobe binaries resolve.
func (c *Client) Health(context.Context) stage.Health {
	for _, bin := range []string{c.binary, c.probeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return stage.Unhealthy("media", fmt.Sprintf("%s not found", bin))
		}
	}
	return stage.Healthy("media")
}

// run executes ffmpeg with the common flags. When progress is requested the
// input is probed first for its duration.
func (c *Client) run(ctx context.Context, op, in, out string, args []string, progress ProgressFunc) error {
	if err := requireFile(in); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var tracker *progressTracker
	if progress != nil {
		info, err := c.probe(ctx, in)
		if err != nil {
			return err
		}
		tracker = newProgressTracker(info.DurationSeconds, progress)
		tracker.emit(0)
	}

	full := append([]string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-progress", "pipe:1", "-nostats"}, args...)
	if err := c.exec.Run(ctx, c.binary, full, tracker.line); err != nil {
		return wrapRunError(ctx, op, err)
	}
	if _, err := os.Stat(out); err != nil {
		return services.Wrap(services.ErrGateway, "", "ffmpeg "+op, "no output file produced", err)
	}
	if tracker != nil {
		tracker.emit(100)
	}
	return nil
}

func requireFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrValidation, "", "ffmpeg", "empty input path", nil)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, "", "ffmpeg", path, nil)
	}
	if err != nil {
		return services.Wrap(services.ErrGateway, "", "ffmpeg", "stat input", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "", "ffmpeg", path+" is a directory", nil)
	}
	return nil
}

// quoteFilterArg escapes a value for use inside an ffmpeg filter graph.
func quoteFilterArg(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `'\''`, `:`, `\:`).Replace(value)
	return "'" + escaped + "'"
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
