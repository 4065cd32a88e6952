package inference

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPreflightMissingCommand(t *testing.T) {
	r := &CommandRunner{Stage: "pose"}
	if _, err := r.Run(context.Background(), []string{"a.mp4"}); err == nil {
		t.Fatal("expected pre-flight error for empty command")
	}
}

func TestPreflightMissingModel(t *testing.T) {
	r := &CommandRunner{
		Stage:     "pose",
		Command:   "true",
		ModelPath: filepath.Join(t.TempDir(), "nope.pt"),
	}
	if _, err := r.Run(context.Background(), []string{"a.mp4"}); err == nil {
		t.Fatal("expected pre-flight error for unreadable model")
	}
}

func TestPerItemIsolation(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.mp4")
	if err := os.WriteFile(good, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	missing := filepath.Join(dir, "missing.mp4")

	// `test -e <input>` succeeds for the existing file and fails for the
	// missing one, exercising real per-item subprocess failures.
	r := &CommandRunner{
		Stage:     "facemap",
		Command:   "test",
		ExtraArgs: []string{"-e"},
		// no OutputSuffix so `test` sees exactly -e <input>
	}

	results, err := r.Run(context.Background(), []string{good, missing, good})
	if err != nil {
		t.Fatalf("batch must not abort for item failures: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 item results, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("good item failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("missing item should have failed")
	}
	if results[2].Err != nil {
		t.Errorf("item after a failure should still run: %v", results[2].Err)
	}
}

func TestOutputNaming(t *testing.T) {
	r := &CommandRunner{
		Stage:        "pose",
		Command:      "true",
		OutputDir:    "/out",
		OutputSuffix: "_pose.csv",
	}
	got := r.outputFor("/data/raw/cam0_body.mp4")
	want := filepath.Join("/out", "cam0_body_pose.csv")
	if got != want {
		t.Errorf("outputFor = %s, want %s", got, want)
	}
}
