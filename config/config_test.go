package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesSelectively(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte("name: tight\nmax_frames: 10\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if profile.Name != "tight" {
		t.Fatalf("Name = %q, want tight", profile.Name)
	}
	if profile.MaxFrames != 10 {
		t.Fatalf("MaxFrames = %d, want 10", profile.MaxFrames)
	}
	if profile.MaxMemoryBytes != Default.MaxMemoryBytes {
		t.Fatalf("MaxMemoryBytes should fall back to Default, got %d", profile.MaxMemoryBytes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error loading a nonexistent file")
	}
}

func TestTrackerNoLimitWhenAllZero(t *testing.T) {
	p := TrackerProfile{}
	tr := p.Tracker()
	if err := tr.OnAllocate(1 << 40); err != nil {
		t.Fatalf("expected no limit, got %v", err)
	}
}

func TestTrackerLimitedEnforcesFrames(t *testing.T) {
	p := TrackerProfile{MaxFrames: 1}
	tr := p.Tracker()
	if err := tr.OnFramePush(); err != nil {
		t.Fatalf("first frame push should succeed: %v", err)
	}
	if err := tr.OnFramePush(); err == nil {
		t.Fatalf("expected an error exceeding MaxFrames")
	}
}
