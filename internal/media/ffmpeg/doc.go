// Package ffmpeg is the media tool gateway. It wraps the ffmpeg CLI for audio
// extraction, thumbnails, caption burn-in, audio/video merging, conversion and
// single frame grabs, and delegates probing to internal/media/ffprobe.
//
// Long-running operations run ffmpeg with `-progress pipe:1` and translate the
// reported out_time into a percentage against the probed input duration.
// Failures become a *ToolError carrying the tail of ffmpeg's stderr, wrapped
// with services.ErrGateway; callers never see a bare exit status.
//
// Command execution goes through the Executor interface so tests can script
// ffmpeg's output without the binary installed.
package ffmpeg
