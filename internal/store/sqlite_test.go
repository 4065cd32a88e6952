package store

import (
	"path/filepath"
	"testing"
	"time"

	"sessionsync/internal/model"
)

// setupTestDB creates a DBClient backed by a temporary database.
func setupTestDB(t *testing.T) *DBClient {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_sessionsync.sqlite3")
	client, err := NewDBClientWithPath(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestCreateAndFinishRun(t *testing.T) {
	client := setupTestDB(t)

	runID, err := client.CreateRun("sub001_2026-08-01")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	stages := map[string]string{"manifest": "ok", "verify": "ok"}
	if err := client.FinishRun(runID, "ok", stages); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := client.ListRuns("sub001_2026-08-01", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != "ok" {
		t.Errorf("status = %s, want ok", runs[0].Status)
	}
	if runs[0].Stages == "" {
		t.Error("stages payload not persisted")
	}
}

func TestSaveManifest(t *testing.T) {
	client := setupTestDB(t)

	runID, _ := client.CreateRun("s1")
	m := &model.Manifest{
		SessionID: "s1",
		Cameras:   []model.CameraEntry{{CameraID: "body", FrameCount: 8580}},
		TTLs:      []model.TTLEntry{{TTLID: "cam_sync", PulseCount: 8580}},
	}
	if err := client.SaveManifest(runID, m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	var rec ManifestRecord
	if err := client.DB.Where("run_id = ?", runID).First(&rec).Error; err != nil {
		t.Fatalf("fetching manifest record: %v", err)
	}
	if rec.SessionID != "s1" || rec.Payload == "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestSaveVerification(t *testing.T) {
	client := setupTestDB(t)

	runID, _ := client.CreateRun("s1")
	summary := &model.VerificationSummary{
		SessionID:   "s1",
		Tolerance:   1,
		GeneratedAt: time.Now().UTC(),
		Cameras: []model.CameraVerification{
			{CameraID: "body", TTLID: "cam_sync", FrameCount: 8580, TTLPulseCount: 8580, Verifiable: true, Status: model.StatusPass},
			{CameraID: "face", Status: model.StatusUnverifiable},
		},
	}
	if err := client.SaveVerification(runID, summary); err != nil {
		t.Fatalf("SaveVerification: %v", err)
	}

	var count int64
	client.DB.Model(&VerificationRecord{}).Where("run_id = ?", runID).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 verification rows, got %d", count)
	}
}

func TestSaveAndListAlignments(t *testing.T) {
	client := setupTestDB(t)

	runID, _ := client.CreateRun("s1")
	stats := model.AlignmentStats{
		Stream:         "pose_body",
		TimebaseSource: "ttl",
		Mapping:        model.MappingNearest,
		OffsetSec:      0.0,
		MaxJitterSec:   0.004,
		P95JitterSec:   0.003,
		AlignedSamples: 8580,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := client.SaveAlignment(runID, "s1", stats); err != nil {
		t.Fatalf("SaveAlignment: %v", err)
	}

	recs, err := client.AlignmentsForRun(runID)
	if err != nil {
		t.Fatalf("AlignmentsForRun: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 alignment row, got %d", len(recs))
	}
	if recs[0].Stream != "pose_body" || recs[0].AlignedSamples != 8580 {
		t.Errorf("row = %+v", recs[0])
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *DBClient
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil client: %v", err)
	}
	if _, err := c.CreateRun("s"); err == nil {
		t.Error("CreateRun on nil client should fail")
	}
	if err := c.SaveManifest("r", &model.Manifest{}); err == nil {
		t.Error("SaveManifest on nil client should fail")
	}
}
