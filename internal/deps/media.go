package deps

import "strings"

// MediaRequirements lists the transcoding binaries the pipeline shells out to.
// Empty commands default to ffmpeg and ffprobe on PATH.
func MediaRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     orDefault(ffmpegBinary, "ffmpeg"),
			Description: "Required for audio extraction, thumbnails and rendering",
		},
		{
			Name:        "FFprobe",
			Command:     orDefault(ffprobeBinary, "ffprobe"),
			Description: "Required for media inspection",
		},
	}
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
