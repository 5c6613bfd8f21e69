package stage

import (
	"fmt"
	"strings"

	"reelsmith/internal/services"
)

// Stage names one step of the processing pipeline.
type Stage string

const (
	ExtractAudio      Stage = "EXTRACT_AUDIO"
	Transcribe        Stage = "TRANSCRIBE"
	EnhanceScript     Stage = "ENHANCE_SCRIPT"
	GenerateVoiceover Stage = "GENERATE_VOICEOVER"
	DetectScenes      Stage = "DETECT_SCENES"
	GenerateCaptions  Stage = "GENERATE_CAPTIONS"
	RenderVideo       Stage = "RENDER_VIDEO"
	Complete          Stage = "COMPLETE"
)

var order = []Stage{
	ExtractAudio,
	Transcribe,
	EnhanceScript,
	GenerateVoiceover,
	DetectScenes,
	GenerateCaptions,
	RenderVideo,
	Complete,
}

// All returns every stage in pipeline order, COMPLETE last.
func All() []Stage {
	out := make([]Stage, len(order))
	copy(out, order)
	return out
}

// Runnable returns the stages that do work, in order.
func Runnable() []Stage {
	return All()[:len(order)-1]
}

// Parse validates a stage name. Matching is case-insensitive and accepts
// dashes in place of underscores. COMPLETE is not a runnable stage.
func Parse(raw string) (Stage, error) {
	normalized := Stage(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if normalized.Runnable() {
		return normalized, nil
	}
	return "", services.Wrap(services.ErrValidation, "", "parse stage",
		fmt.Sprintf("unknown stage %q", raw), nil)
}

// Index returns the position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, candidate := range order {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Runnable reports whether s names a stage that performs work.
func (s Stage) Runnable() bool {
	idx := s.Index()
	return idx >= 0 && s != Complete
}

// Next returns the stage after s; COMPLETE follows RENDER_VIDEO and is terminal.
func (s Stage) Next() Stage {
	idx := s.Index()
	if idx < 0 || idx >= len(order)-1 {
		return Complete
	}
	return order[idx+1]
}

// From returns s and every runnable stage after it.
func From(s Stage) []Stage {
	idx := s.Index()
	if idx < 0 || s == Complete {
		return nil
	}
	runnable := Runnable()
	out := make([]Stage, len(runnable)-idx)
	copy(out, runnable[idx:])
	return out
}

func (s Stage) String() string { return string(s) }
