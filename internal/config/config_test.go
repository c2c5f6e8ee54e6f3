package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Radar.RadiusMeters != 100 {
		t.Fatalf("expected default radius 100m, got %v", cfg.Radar.RadiusMeters)
	}
	if cfg.Radar.TickInterval != 200*time.Millisecond {
		t.Fatalf("expected default tick 200ms, got %v", cfg.Radar.TickInterval)
	}
	if cfg.Output.Path != "radar_output.json" {
		t.Fatalf("unexpected default output path: %q", cfg.Output.Path)
	}
	if cfg.Output.RetryCeiling != 3 {
		t.Fatalf("expected retry ceiling 3, got %d", cfg.Output.RetryCeiling)
	}
	if cfg.Archive.Enabled {
		t.Fatal("archive must default off")
	}
	if !cfg.Publish.Enabled {
		t.Fatal("publisher must default on")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	raw := `
[radar]
radius_meters = 50.0
max_entities = 64

[output]
path = "/tmp/out.json"

[logging]
level = "debug"
`
	path := filepath.Join(t.TempDir(), "radar.toml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Radar.RadiusMeters != 50 || cfg.Radar.MaxEntities != 64 {
		t.Fatalf("file values not applied: %+v", cfg.Radar)
	}
	if cfg.Output.Path != "/tmp/out.json" {
		t.Fatalf("output path not applied: %q", cfg.Output.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level not applied: %q", cfg.Logging.Level)
	}
	// untouched sections keep their defaults
	if cfg.Radar.TickInterval != 200*time.Millisecond {
		t.Fatalf("default tick lost: %v", cfg.Radar.TickInterval)
	}
	if cfg.Feed.BindAddress != "127.0.0.1:7801" {
		t.Fatalf("default feed address lost: %q", cfg.Feed.BindAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("missing file must be an error")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.toml")
	if err := os.WriteFile(path, []byte("[radar\nbroken"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed TOML must be an error")
	}
}
