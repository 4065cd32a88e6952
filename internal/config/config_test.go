package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTOML = `
[session]
id = "sub001_2026-08-01"
root = "."

[[cameras]]
id = "body"
glob = "raw_video_data/*_body.mp4"
ttl = "cam_sync"
samples_glob = "raw_video_data/*_times.txt"

[[cameras]]
id = "face"
glob = "raw_video_data/*_face.mp4"
order = "mtime_asc"

[[ttls]]
id = "cam_sync"
glob = "raw_sync_data/cam_sync*.txt"

[timebase]
source = "nominal_rate"
rate_hz = 30.0
jitter_budget_s = 0.001

[verification]
tolerance = 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !filepath.IsAbs(cfg.Session.Root) {
		t.Errorf("session root not absolute: %q", cfg.Session.Root)
	}
	if want := filepath.Join(cfg.Session.Root, "derived"); cfg.Session.OutputDir != want {
		t.Errorf("output dir = %q, want %q", cfg.Session.OutputDir, want)
	}
	// The sample config declares a relative root; every defaulted directory
	// must still come out absolute.
	if !filepath.IsAbs(cfg.Session.OutputDir) {
		t.Errorf("defaulted output dir is relative: %q", cfg.Session.OutputDir)
	}
	if want := filepath.Join(cfg.Session.OutputDir, "mezzanine"); cfg.Encode.OutputDir != want {
		t.Errorf("encode output dir = %q, want %q", cfg.Encode.OutputDir, want)
	}
	if cfg.Timebase.Mapping != "nearest" {
		t.Errorf("default mapping = %q, want nearest", cfg.Timebase.Mapping)
	}
	if cfg.Cameras[0].Order != OrderNameAsc {
		t.Errorf("default camera order = %q, want %s", cfg.Cameras[0].Order, OrderNameAsc)
	}
	if cfg.Cameras[1].Order != OrderMtimeAsc {
		t.Errorf("explicit order overwritten: %q", cfg.Cameras[1].Order)
	}
	if cfg.Encode.Codec != "libx264" {
		t.Errorf("default codec = %q", cfg.Encode.Codec)
	}
	if cfg.Pose.TimeoutSec != 3600 || cfg.Facemap.TimeoutSec != 3600 {
		t.Errorf("default inference timeouts = %d/%d, want 3600", cfg.Pose.TimeoutSec, cfg.Facemap.TimeoutSec)
	}
	if cfg.Storage.DBPath == "" {
		t.Error("default db path not applied")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleTOML+"\n[timbase]\nsource = \"ttl\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
	if !strings.Contains(err.Error(), "unknown keys") || !strings.Contains(err.Error(), "timbase") {
		t.Errorf("error should name the unknown key: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{} // everything missing
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type %T, want ValidationErrors", err)
	}

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{"session.id", "session.root", "cameras", "timebase.source"} {
		if !fields[want] {
			t.Errorf("missing validation error for %s; got %v", want, fields)
		}
	}
}

func TestValidateScenarios(t *testing.T) {
	base := func() *Config {
		return &Config{
			Session: SessionConfig{ID: "s1", Root: "/data/s1"},
			Cameras: []CameraConfig{{ID: "body", Glob: "*.mp4", TTLID: "cam_sync"}},
			TTLs:    []TTLConfig{{ID: "cam_sync", Glob: "*.txt"}},
			Timebase: TimebaseConfig{
				Source: SourceNominal,
				RateHz: 30,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // substring of the validation message, "" for valid
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero rate for nominal source", func(c *Config) { c.Timebase.RateHz = 0 }, "timebase.rate_hz"},
		{"ttl source without ref channel", func(c *Config) {
			c.Timebase.Source = SourceTTL
		}, "timebase.ref_channel"},
		{"ttl source with undeclared ref channel", func(c *Config) {
			c.Timebase.Source = SourceTTL
			c.Timebase.RefChannel = "wheel"
		}, `undeclared ttl channel "wheel"`},
		{"ttl source with declared ref channel", func(c *Config) {
			c.Timebase.Source = SourceTTL
			c.Timebase.RefChannel = "cam_sync"
		}, ""},
		{"external source needs ref channel too", func(c *Config) {
			c.Timebase.Source = SourceExternal
		}, "timebase.ref_channel"},
		{"unknown source", func(c *Config) { c.Timebase.Source = "gps" }, `unknown source "gps"`},
		{"unknown mapping", func(c *Config) { c.Timebase.Mapping = "spline" }, `unknown mapping "spline"`},
		{"negative jitter budget", func(c *Config) { c.Timebase.JitterBudgetS = -0.1 }, "jitter_budget_s"},
		{"negative tolerance", func(c *Config) { c.Verification.Tolerance = -1 }, "verification.tolerance"},
		{"camera references undeclared ttl", func(c *Config) {
			c.Cameras[0].TTLID = "lick"
		}, `undeclared ttl channel "lick"`},
		{"bad ordering rule", func(c *Config) { c.Cameras[0].Order = "size_desc" }, "ordering rule"},
		{"pose enabled without command", func(c *Config) { c.Pose.Enabled = true }, "pose.command"},
		{"facemap enabled without command", func(c *Config) { c.Facemap.Enabled = true }, "facemap.command"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SESSIONSYNC_DB_PATH", "/tmp/override.sqlite3")
	t.Setenv("SESSIONSYNC_OUTPUT_DIR", "/tmp/override-out")

	cfg := &Config{
		Storage: StorageConfig{DBPath: "original.sqlite3"},
		Session: SessionConfig{OutputDir: "/data/derived"},
	}
	cfg.ApplyEnvOverrides()

	if cfg.Storage.DBPath != "/tmp/override.sqlite3" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Session.OutputDir != "/tmp/override-out" {
		t.Errorf("output dir = %q", cfg.Session.OutputDir)
	}
}

func TestSnapshotContainsSessionID(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := cfg.Snapshot()
	if !strings.Contains(snap, `"sub001_2026-08-01"`) {
		t.Errorf("snapshot missing session id: %s", snap)
	}
}
