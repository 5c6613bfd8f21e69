package stage_test

import (
	"errors"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    stage.Stage
		wantErr bool
	}{
		{"EXTRACT_AUDIO", stage.ExtractAudio, false},
		{"generate-captions", stage.GenerateCaptions, false},
		{" render_video ", stage.RenderVideo, false},
		{"COMPLETE", "", true},
		{"", "", true},
		{"UPLOAD", "", true},
	}
	for _, tt := range tests {
		got, err := stage.Parse(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("Parse(%q): expected validation error, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("Parse(%q) = %q, %v; want %q", tt.raw, got, err, tt.want)
		}
	}
}

func TestOrderAndNext(t *testing.T) {
	all := stage.All()
	if len(all) != 8 || all[0] != stage.ExtractAudio || all[7] != stage.Complete {
		t.Fatalf("unexpected order: %v", all)
	}
	for i := 0; i < len(all)-1; i++ {
		if all[i].Next() != all[i+1] {
			t.Fatalf("%s.Next() = %s, want %s", all[i], all[i].Next(), all[i+1])
		}
	}
	if stage.Complete.Next() != stage.Complete {
		t.Fatal("COMPLETE should be terminal")
	}
	if len(stage.Runnable()) != 7 {
		t.Fatalf("expected seven runnable stages, got %d", len(stage.Runnable()))
	}
}

func TestFrom(t *testing.T) {
	got := stage.From(stage.GenerateCaptions)
	if len(got) != 2 || got[0] != stage.GenerateCaptions || got[1] != stage.RenderVideo {
		t.Fatalf("unexpected regeneration plan: %v", got)
	}
	if len(stage.From(stage.ExtractAudio)) != 7 {
		t.Fatal("expected a full run from the first stage")
	}
	if stage.From(stage.Complete) != nil || stage.From("BOGUS") != nil {
		t.Fatal("expected no plan for terminal or unknown stages")
	}
}
