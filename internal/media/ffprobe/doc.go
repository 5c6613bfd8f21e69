// Package ffprobe runs ffprobe and decodes its JSON output into a Result and
// the Info summary attached to stored video files.
package ffprobe
