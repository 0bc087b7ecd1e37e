package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error for a missing file: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vela.yaml")
	if err := os.WriteFile(path, []byte("maxFrames: 64\ngcVerbose: true\n"), 0o644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxFrames != 64 || !cfg.GCVerbose {
		t.Fatalf("expected overlaid values, got %+v", cfg)
	}
	if cfg.PoolMax != 32 {
		t.Fatalf("expected untouched fields to keep their default, got PoolMax=%d", cfg.PoolMax)
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("maxFrames: [this is not an int\n"), 0o644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed YAML")
	}
}
