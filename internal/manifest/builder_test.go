package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sessionsync/internal/config"
	"sessionsync/internal/model"
)

// stubProber returns fixed metadata without touching ffprobe.
type stubProber struct {
	frames int
	fail   map[string]bool
}

func (s *stubProber) Probe(_ context.Context, path string) (*model.VideoMetadata, error) {
	if s.fail[filepath.Base(path)] {
		return nil, &model.ToolError{Tool: "ffprobe", Path: path, Err: errors.New("boom")}
	}
	return &model.VideoMetadata{
		Path:        path,
		Codec:       "h264",
		Width:       1280,
		Height:      1024,
		FPSNum:      30,
		FPSDen:      1,
		FPS:         30,
		FrameCount:  s.frames,
		DurationSec: float64(s.frames) / 30,
	}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func sessionConfig(root string) *config.Config {
	return &config.Config{
		Session: config.SessionConfig{ID: "sub001_2026-08-01", Root: root},
		Cameras: []config.CameraConfig{
			{ID: "body", Glob: "raw_video_data/*_body.mp4", Order: config.OrderNameAsc, TTLID: "cam_sync"},
		},
		TTLs: []config.TTLConfig{
			{ID: "cam_sync", Glob: "raw_sync_data/cam_sync*.txt", Order: config.OrderNameAsc},
		},
		Bpod: config.BpodConfig{Glob: "raw_behavior_data/*.mat"},
	}
}

func TestBuildManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw_video_data", "b_body.mp4"), "x")
	writeFile(t, filepath.Join(root, "raw_video_data", "a_body.mp4"), "x")
	writeFile(t, filepath.Join(root, "raw_sync_data", "cam_sync.txt"), "0.0\n0.033\n0.066\n\n0.1\n")

	b := NewBuilder(&stubProber{frames: 50}, nil)
	m, err := b.Build(context.Background(), sessionConfig(root))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Cameras) != 1 {
		t.Fatalf("expected 1 camera, got %d", len(m.Cameras))
	}
	cam := m.Cameras[0]

	if len(cam.VideoFiles) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(cam.VideoFiles))
	}
	// name_asc ordering regardless of creation order
	if filepath.Base(cam.VideoFiles[0]) != "a_body.mp4" || filepath.Base(cam.VideoFiles[1]) != "b_body.mp4" {
		t.Errorf("videos not in name_asc order: %v", cam.VideoFiles)
	}
	for _, f := range cam.VideoFiles {
		if !filepath.IsAbs(f) {
			t.Errorf("video path not absolute: %s", f)
		}
	}
	if cam.FrameCount != 100 {
		t.Errorf("frame count = %d, want 100 (50 per video)", cam.FrameCount)
	}

	ttl := m.TTL("cam_sync")
	if ttl == nil {
		t.Fatal("ttl channel cam_sync missing from manifest")
	}
	// one pulse per non-empty line
	if ttl.PulseCount != 4 {
		t.Errorf("pulse count = %d, want 4", ttl.PulseCount)
	}
	if len(ttl.PulseTimes) != 4 {
		t.Errorf("pulse times = %d, want 4", len(ttl.PulseTimes))
	}
	if cam.TTLPulseCount != 4 {
		t.Errorf("camera ttl pulse count = %d, want 4", cam.TTLPulseCount)
	}
	for _, f := range ttl.Files {
		if !filepath.IsAbs(f) {
			t.Errorf("ttl path not absolute: %s", f)
		}
	}

	// bpod glob matched nothing: optional, just omitted
	if len(m.BpodFiles) != 0 {
		t.Errorf("expected no bpod files, got %v", m.BpodFiles)
	}
}

func TestBuildMissingCamera(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw_sync_data", "cam_sync.txt"), "0.0\n")

	b := NewBuilder(&stubProber{frames: 10}, nil)
	_, err := b.Build(context.Background(), sessionConfig(root))
	if err == nil {
		t.Fatal("expected MissingInputError for camera with no files")
	}

	var miss *model.MissingInputError
	if !errors.As(err, &miss) {
		t.Fatalf("expected MissingInputError, got %T: %v", err, err)
	}
	if miss.Kind != "camera" || miss.ID != "body" {
		t.Errorf("error names %s %q, want camera body", miss.Kind, miss.ID)
	}
}

func TestBuildMissingTTL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw_video_data", "a_body.mp4"), "x")

	b := NewBuilder(&stubProber{frames: 10}, nil)
	_, err := b.Build(context.Background(), sessionConfig(root))

	var miss *model.MissingInputError
	if !errors.As(err, &miss) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if miss.Kind != "ttl" {
		t.Errorf("error kind = %s, want ttl", miss.Kind)
	}
}

func TestBuildProbeFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw_video_data", "a_body.mp4"), "x")
	writeFile(t, filepath.Join(root, "raw_sync_data", "cam_sync.txt"), "0.0\n")

	b := NewBuilder(&stubProber{frames: 10, fail: map[string]bool{"a_body.mp4": true}}, nil)
	_, err := b.Build(context.Background(), sessionConfig(root))

	var tool *model.ToolError
	if !errors.As(err, &tool) {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestDiscoverOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "v_2.mp4"), "x")
	writeFile(t, filepath.Join(root, "v_1.mp4"), "x")
	writeFile(t, filepath.Join(root, "v_3.mp4"), "x")

	asc, err := Discover(root, "v_*.mp4", config.OrderNameAsc)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	desc, err := Discover(root, "v_*.mp4", config.OrderNameDesc)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if filepath.Base(asc[0]) != "v_1.mp4" || filepath.Base(asc[2]) != "v_3.mp4" {
		t.Errorf("name_asc wrong: %v", asc)
	}
	if filepath.Base(desc[0]) != "v_3.mp4" || filepath.Base(desc[2]) != "v_1.mp4" {
		t.Errorf("name_desc wrong: %v", desc)
	}
}

func TestCountPulses(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "sync.txt")
	writeFile(t, path, "0.001\n0.034\n\n0.067\n   \n0.100\n")

	count, times, err := CountPulses(path)
	if err != nil {
		t.Fatalf("CountPulses: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4 (non-empty lines only)", count)
	}
	if len(times) != count {
		t.Errorf("times = %d entries, want %d", len(times), count)
	}
	if times[0] != 0.001 || times[3] != 0.100 {
		t.Errorf("unexpected times: %v", times)
	}
}

func TestCountPulsesUnparsableTimestamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.txt")
	writeFile(t, path, "pulse\npulse\npulse\n")

	count, times, err := CountPulses(path)
	if err != nil {
		t.Fatalf("CountPulses: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if times != nil {
		t.Errorf("expected nil times for unparsable file, got %v", times)
	}
}

func TestCountPulsesFirstField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.txt")
	writeFile(t, path, "0.5 HIGH\n1.0 LOW\n")

	count, times, err := CountPulses(path)
	if err != nil {
		t.Fatalf("CountPulses: %v", err)
	}
	if count != 2 || len(times) != 2 || times[1] != 1.0 {
		t.Errorf("count=%d times=%v, want 2 pulses at 0.5 and 1.0", count, times)
	}
}
