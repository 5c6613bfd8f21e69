package videostore

import (
	"strings"
	"time"

	"reelsmith/internal/stage"
)

// Status represents the lifecycle of a video record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// ParseStatus converts a string into a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusUploading, StatusProcessing, StatusReady, StatusError:
		return s, true
	default:
		return "", false
	}
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FileRef references a stored media file and its probed properties.
type FileRef struct {
	URL             string     `json:"url"`
	Key             string     `json:"key"`
	SizeBytes       int64      `json:"sizeBytes"`
	DurationSeconds float64    `json:"durationSeconds"`
	Format          string     `json:"format"`
	Resolution      Resolution `json:"resolution"`
}

// CaptionStyle controls how a cue is drawn when burned in.
type CaptionStyle struct {
	Position   string `json:"position,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
}

// Caption is one timed cue attached to a video.
type Caption struct {
	ID       string        `json:"id"`
	StartSec float64       `json:"startSec"`
	EndSec   float64       `json:"endSec"`
	Text     string        `json:"text"`
	Style    *CaptionStyle `json:"style,omitempty"`
}

type Scene struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

type Highlight struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Label    string  `json:"label"`
}

// Keyframe is a thumbnail captured at a point in the source video.
type Keyframe struct {
	TimeSec float64 `json:"timeSec"`
	Key     string  `json:"key"`
	URL     string  `json:"url"`
}

type AudioLevel struct {
	TimeSec float64 `json:"timeSec"`
	Level   float64 `json:"level"`
}

// Metadata groups the scene-detection outputs. Each list is stored and
// replaced independently.
type Metadata struct {
	Scenes      []Scene      `json:"scenes"`
	Highlights  []Highlight  `json:"highlights"`
	Keyframes   []Keyframe   `json:"keyframes"`
	AudioLevels []AudioLevel `json:"audioLevels"`
}

// MetadataKind names one of the Metadata lists.
type MetadataKind string

const (
	MetadataScenes      MetadataKind = "scenes"
	MetadataHighlights  MetadataKind = "highlights"
	MetadataKeyframes   MetadataKind = "keyframes"
	MetadataAudioLevels MetadataKind = "audio_levels"
)

// Processing is the live pipeline state of a video.
type Processing struct {
	Stage       stage.Stage `json:"stage"`
	Progress    int         `json:"progress"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"startedAt,omitzero"`
	CompletedAt time.Time   `json:"completedAt,omitzero"`
}

// VideoRecord is one uploaded video with its pipeline state and artifacts.
type VideoRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	OriginalFile  *FileRef   `json:"originalFile,omitempty"`
	ProcessedFile *FileRef   `json:"processedFile,omitempty"`
	TranscriptRef string     `json:"transcriptRef,omitempty"`
	Captions      []Caption  `json:"captions"`
	Metadata      Metadata   `json:"metadata"`
	Processing    Processing `json:"processing"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// StatusView is the projection exposed to status queries.
type StatusView struct {
	VideoID    string     `json:"videoId"`
	Status     Status     `json:"status"`
	Processing Processing `json:"processing"`
}

// View projects the record into a StatusView.
func (v *VideoRecord) View() StatusView {
	return StatusView{VideoID: v.ID, Status: v.Status, Processing: v.Processing}
}

// Segment is one timed span of recognized speech.
type Segment struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// TranscriptRecord is the single transcript owned by a video.
type TranscriptRecord struct {
	ID           string    `json:"id"`
	VideoID      string    `json:"videoId"`
	OriginalText string    `json:"originalText"`
	EnhancedText string    `json:"enhancedText,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Segments     []Segment `json:"segments"`
	Language     string    `json:"language"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ScriptText returns the enhanced text when present, otherwise the original.
func (t *TranscriptRecord) ScriptText() string {
	if t == nil {
		return ""
	}
	if strings.TrimSpace(t.EnhancedText) != "" {
		return t.EnhancedText
	}
	return t.OriginalText
}

// ArtifactKind names a blob produced by a stage that has no dedicated record field.
type ArtifactKind string

const (
	ArtifactAudio     ArtifactKind = "audio"
	ArtifactVoiceover ArtifactKind = "voiceover"
	ArtifactSubtitle  ArtifactKind = "subtitle"
)

// Artifact references a stored intermediate blob.
type Artifact struct {
	VideoID     string       `json:"videoId"`
	Kind        ArtifactKind `json:"kind"`
	Key         string       `json:"key"`
	URL         string       `json:"url,omitempty"`
	SizeBytes   int64        `json:"sizeBytes"`
	ContentType string       `json:"contentType,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
