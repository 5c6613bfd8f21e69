package generative_test

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/generative"
	"reelsmith/internal/services"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/speech"
)

type fakeText struct {
	configured  bool
	enhancement llm.Enhancement
	err         error
	calls       int
}

func (f *fakeText) Configured() bool { return f.configured }

func (f *fakeText) EnhanceScript(context.Context, string, string) (llm.Enhancement, error) {
	f.calls++
	return f.enhancement, f.err
}

func (f *fakeText) Summarize(context.Context, string) (string, error) {
	f.calls++
	return "live summary", f.err
}

func (f *fakeText) HealthCheck(context.Context) error { return f.err }

type fakeSpeech struct {
	configured    bool
	transcription speech.Transcription
	err           error
}

func (f *fakeSpeech) Configured() bool { return f.configured }

func (f *fakeSpeech) Transcribe(context.Context, []byte, string) (speech.Transcription, error) {
	return f.transcription, f.err
}

func (f *fakeSpeech) Synthesize(context.Context, string, string) ([]byte, error) {
	return []byte("mp3"), f.err
}

func (f *fakeSpeech) HealthCheck(context.Context) error { return f.err }

func TestNewSelectsFallbackWithoutKeys(t *testing.T) {
	cfg := config.Default()
	if got := generative.New(&cfg, nil).Mode(); got != generative.ModeFallback {
		t.Fatalf("expected fallback mode, got %s", got)
	}
	cfg.LLM.APIKey = "key"
	if got := generative.New(&cfg, nil).Mode(); got != generative.ModeLive {
		t.Fatalf("expected live mode, got %s", got)
	}
}

func TestLiveTranscribeMapsSegments(t *testing.T) {
	sp := &fakeSpeech{configured: true, transcription: speech.Transcription{
		Language: "english",
		Segments: []speech.Segment{
			{Start: 0, End: 1.5, Text: " Hello "},
			{Start: 1.5, End: 2, Text: "  "},
			{Start: 2, End: 3, Text: "world", AvgLogprob: -0.5},
		},
	}}
	gw := generative.NewLive(&fakeText{}, sp, nil)
	got, err := gw.Transcribe(context.Background(), []byte("a"), "a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Language != "en" || got.Text != "Hello world" || len(got.Segments) != 2 {
		t.Fatalf("unexpected transcription %+v", got)
	}
	if got.Confidence <= 0 || got.Confidence >= 1 {
		t.Fatalf("unexpected confidence %f", got.Confidence)
	}
}

func TestLiveDelegatesToFallbackPerCapability(t *testing.T) {
	text := &fakeText{configured: true, enhancement: llm.Enhancement{EnhancedText: "Polished."}}
	gw := generative.NewLive(text, &fakeSpeech{}, nil)

	enh, err := gw.EnhanceScript(context.Background(), "raw words", "")
	if err != nil || enh.EnhancedText != "Polished." || len(enh.Improvements) == 0 {
		t.Fatalf("unexpected enhancement %+v err=%v", enh, err)
	}
	voice, err := gw.SynthesizeVoice(context.Background(), "hello", "")
	if err != nil || voice.Format != "wav" {
		t.Fatalf("expected fallback wav voice, got %+v err=%v", voice, err)
	}
	if gw.Mode() != generative.ModeLive {
		t.Fatalf("expected live mode")
	}
}

func TestLivePropagatesGatewayErrors(t *testing.T) {
	failure := services.Wrap(services.ErrGateway, "", "speech transcribe", "", errors.New("boom"))
	gw := generative.NewLive(nil, &fakeSpeech{configured: true, err: failure}, nil)
	if _, err := gw.Transcribe(context.Background(), []byte("a"), "a.mp3"); !errors.Is(err, services.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	health := gw.Health(context.Background())
	if health.Ready {
		t.Fatalf("expected unhealthy status, got %+v", health)
	}
}
