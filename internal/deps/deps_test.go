package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Path != present {
		t.Fatalf("expected resolved path %s, got %q", present, results[0].Path)
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestMediaRequirementsDefaults(t *testing.T) {
	reqs := MediaRequirements("", "  /opt/ffprobe ")
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "ffmpeg" {
		t.Fatalf("expected ffmpeg default, got %q", reqs[0].Command)
	}
	if reqs[1].Command != "/opt/ffprobe" {
		t.Fatalf("expected trimmed ffprobe path, got %q", reqs[1].Command)
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Requirement: Requirement{Name: "FFmpeg"}, Available: true},
		{Requirement: Requirement{Name: "FFprobe"}},
		{Requirement: Requirement{Name: "Extra", Optional: true}},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "FFprobe" {
		t.Fatalf("unexpected missing list: %+v", missing)
	}
}

func TestMediaRequirementsResolveStubs(t *testing.T) {
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(binDir, executableName(name)), script, 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}
	t.Setenv("PATH", binDir)

	statuses := CheckBinaries(MediaRequirements("", ""))
	if missing := Missing(statuses); len(missing) != 0 {
		t.Fatalf("expected stubs to resolve, missing %+v", missing)
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
