package generative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelsmith/internal/language"
	"reelsmith/internal/logging"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/speech"
	"reelsmith/internal/stage"
)

// TextProvider is the llm surface used for script work.
type TextProvider interface {
	Configured() bool
	EnhanceScript(ctx context.Context, text, contextHint string) (llm.Enhancement, error)
	Summarize(ctx context.Context, text string) (string, error)
	HealthCheck(ctx context.Context) error
}

// SpeechProvider is the audio surface used for transcription and voiceovers.
type SpeechProvider interface {
	Configured() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (speech.Transcription, error)
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// Live routes each call to its provider, or to the fallback when that
// provider has no credentials.
type Live struct {
	text     TextProvider
	speech   SpeechProvider
	fallback *Fallback
	logger   *slog.Logger
}

// NewLive composes the providers. Either may be nil.
func NewLive(text TextProvider, speechProvider SpeechProvider, logger *slog.Logger) *Live {
	return &Live{
		text:     text,
		speech:   speechProvider,
		fallback: NewFallback(),
		logger:   logging.NewComponentLogger(logger, "generative"),
	}
}

func (l *Live) textReady() bool   { return l.text != nil && l.text.Configured() }
func (l *Live) speechReady() bool { return l.speech != nil && l.speech.Configured() }

// Mode is live when at least one provider is configured.
func (l *Live) Mode() Mode {
	if l.textReady() || l.speechReady() {
		return ModeLive
	}
	return ModeFallback
}

func (l *Live) Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	if !l.speechReady() {
		l.logFallback(ctx, "transcribe")
		return l.fallback.Transcribe(ctx, audio, filename)
	}
	resp, err := l.speech.Transcribe(ctx, audio, filename)
	if err != nil {
		return Transcription{}, err
	}
	out := Transcription{
		Text:     resp.Text,
		Language: language.Normalize(resp.Language),
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	var total float64
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		confidence := seg.Confidence()
		total += confidence
		out.Segments = append(out.Segments, Segment{
			ID:         len(out.Segments),
			Text:       text,
			StartSec:   seg.Start,
			EndSec:     seg.End,
			Confidence: confidence,
		})
	}
	if len(out.Segments) > 0 {
		out.Confidence = total / float64(len(out.Segments))
	}
	if out.Text == "" {
		parts := make([]string, len(out.Segments))
		for i, seg := range out.Segments {
			parts[i] = seg.Text
		}
		out.Text = strings.Join(parts, " ")
	}
	return out, nil
}

func (l *Live) EnhanceScript(ctx context.Context, text, contextHint string) (Enhancement, error) {
	if !l.textReady() {
		l.logFallback(ctx, "enhance_script")
		return l.fallback.EnhanceScript(ctx, text, contextHint)
	}
	if strings.TrimSpace(text) == "" {
		return l.fallback.EnhanceScript(ctx, text, contextHint)
	}
	resp, err := l.text.EnhanceScript(ctx, text, contextHint)
	if err != nil {
		return Enhancement{}, err
	}
	improvements := resp.Improvements
	if len(improvements) == 0 {
		improvements = []string{"Rewrote transcript for clarity"}
	}
	return Enhancement{EnhancedText: resp.EnhancedText, Improvements: improvements}, nil
}

func (l *Live) SynthesizeVoice(ctx context.Context, text, voiceID string) (Voice, error) {
	if !l.speechReady() {
		l.logFallback(ctx, "synthesize_voice")
		return l.fallback.SynthesizeVoice(ctx, text, voiceID)
	}
	audio, err := l.speech.Synthesize(ctx, text, voiceID)
	if err != nil {
		return Voice{}, err
	}
	return Voice{Audio: audio, Format: "mp3"}, nil
}

func (l *Live) Summarize(ctx context.Context, text string) (string, error) {
	if !l.textReady() || strings.TrimSpace(text) == "" {
		return l.fallback.Summarize(ctx, text)
	}
	return l.text.Summarize(ctx, text)
}

// Health checks each configured provider.
func (l *Live) Health(ctx context.Context) stage.Health {
	var live, problems []string
	if l.textReady() {
		if err := l.text.HealthCheck(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("llm: %v", err))
		} else {
			live = append(live, "llm")
		}
	}
	if l.speechReady() {
		if err := l.speech.HealthCheck(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("speech: %v", err))
		} else {
			live = append(live, "speech")
		}
	}
	if len(problems) > 0 {
		return stage.Unhealthy(healthName, strings.Join(problems, "; "))
	}
	if len(live) == 0 {
		return stage.Health{Name: healthName, Ready: true, Detail: string(ModeFallback)}
	}
	return stage.Health{Name: healthName, Ready: true, Detail: fmt.Sprintf("%s (%s)", ModeLive, strings.Join(live, ", "))}
}

func (l *Live) logFallback(ctx context.Context, op string) {
	logging.WithContext(ctx, l.logger).Debug("provider not configured; using deterministic fallback",
		logging.String("operation", op))
}
