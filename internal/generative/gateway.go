package generative

import (
	"context"
	"log/slog"

	"reelsmith/internal/config"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/speech"
	"reelsmith/internal/stage"
)

// Mode reports which implementation answers calls.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFallback Mode = "fallback"
)

// Segment is one timed span of a transcription.
type Segment struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Transcription is the result of Transcribe.
type Transcription struct {
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
}

// Enhancement is the result of EnhanceScript.
type Enhancement struct {
	EnhancedText string   `json:"enhancedText"`
	Improvements []string `json:"improvements"`
}

// Voice is synthesized speech. Format is the file extension of Audio
// ("mp3" from a live provider, "wav" from the fallback).
type Voice struct {
	Audio  []byte
	Format string
}

// Gateway is the contract the pipeline depends on.
type Gateway interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error)
	EnhanceScript(ctx context.Context, text, contextHint string) (Enhancement, error)
	SynthesizeVoice(ctx context.Context, text, voiceID string) (Voice, error)
	Summarize(ctx context.Context, text string) (string, error)
	Mode() Mode
	Health(ctx context.Context) stage.Health
}

// New builds the gateway for cfg: Live when any provider key is configured,
// otherwise Fallback.
func New(cfg *config.Config, logger *slog.Logger) Gateway {
	if cfg == nil || !cfg.GenerativeLive() {
		return NewFallback()
	}
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	speechClient := speech.NewClient(speech.Config{
		APIKey:             cfg.Speech.APIKey,
		BaseURL:            cfg.Speech.BaseURL,
		TranscriptionModel: cfg.Speech.TranscriptionModel,
		TTSModel:           cfg.Speech.TTSModel,
		Voice:              cfg.Speech.Voice,
		TimeoutSeconds:     cfg.Speech.TimeoutSeconds,
	})
	return NewLive(llmClient, speechClient, logger)
}

const healthName = "generative"
