// Package store persists manifests, verification summaries, and alignment
// statistics for provenance auditing.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sessionsync/internal/model"
)

const DefaultDBFile = "sessionsync.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Run is one pipeline execution.
type Run struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	SessionID string `gorm:"index:idx_run_session" json:"session_id"`
	Status    string `json:"status"`
	Stages    string `json:"stages"` // JSON-encoded per-stage outcomes
	CreatedAt time.Time
}

// ManifestRecord is the JSON snapshot of a built manifest.
type ManifestRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"type:varchar(36);index:idx_manifest_run" json:"run_id"`
	SessionID string `gorm:"index:idx_manifest_session" json:"session_id"`
	Payload   string `json:"payload"`
	CreatedAt time.Time
}

// VerificationRecord is one camera's reconciliation outcome.
type VerificationRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"type:varchar(36);index:idx_verify_run" json:"run_id"`
	SessionID   string `gorm:"index:idx_verify_session" json:"session_id"`
	CameraID    string `json:"camera_id"`
	TTLID       string `json:"ttl_id"`
	FrameCount  int    `json:"frame_count"`
	PulseCount  int    `json:"ttl_pulse_count"`
	Mismatch    int    `json:"mismatch"`
	Verifiable  bool   `json:"verifiable"`
	Status      string `json:"status"`
	GeneratedAt time.Time
}

// AlignmentRecord is the provenance of one alignment call.
type AlignmentRecord struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	RunID          string  `gorm:"type:varchar(36);index:idx_align_run" json:"run_id"`
	SessionID      string  `gorm:"index:idx_align_session" json:"session_id"`
	Stream         string  `json:"stream"`
	TimebaseSource string  `json:"timebase_source"`
	Mapping        string  `json:"mapping"`
	OffsetS        float64 `json:"offset_s"`
	MaxJitterS     float64 `json:"max_jitter_s"`
	P95JitterS     float64 `json:"p95_jitter_s"`
	AlignedSamples int     `json:"aligned_samples"`
	GeneratedAt    time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("SESSIONSYNC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		if filepath.Dir(dbPath) != "." {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &ManifestRecord{}, &VerificationRecord{}, &AlignmentRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CreateRun registers a new pipeline run and returns its id.
func (c *DBClient) CreateRun(sessionID string) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	run := Run{ID: uuid.NewString(), SessionID: sessionID, Status: "running"}
	if err := c.DB.Create(&run).Error; err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return run.ID, nil
}

// FinishRun records the final status and per-stage outcomes of a run.
func (c *DBClient) FinishRun(runID, status string, stages any) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	payload, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("encoding stages: %w", err)
	}
	return c.DB.Model(&Run{}).Where("id = ?", runID).
		Updates(map[string]any{"status": status, "stages": string(payload)}).Error
}

// SaveManifest stores a JSON snapshot of the built manifest.
func (c *DBClient) SaveManifest(runID string, m *model.Manifest) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	rec := ManifestRecord{RunID: runID, SessionID: m.SessionID, Payload: string(payload)}
	if err := c.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("storing manifest: %w", err)
	}
	return nil
}

// SaveVerification stores every camera record of a verification summary.
func (c *DBClient) SaveVerification(runID string, s *model.VerificationSummary) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	recs := make([]VerificationRecord, 0, len(s.Cameras))
	for _, cam := range s.Cameras {
		recs = append(recs, VerificationRecord{
			RunID:       runID,
			SessionID:   s.SessionID,
			CameraID:    cam.CameraID,
			TTLID:       cam.TTLID,
			FrameCount:  cam.FrameCount,
			PulseCount:  cam.TTLPulseCount,
			Mismatch:    cam.Mismatch,
			Verifiable:  cam.Verifiable,
			Status:      string(cam.Status),
			GeneratedAt: s.GeneratedAt,
		})
	}
	if len(recs) == 0 {
		return nil
	}
	if err := c.DB.Create(&recs).Error; err != nil {
		return fmt.Errorf("storing verification records: %w", err)
	}
	return nil
}

// SaveAlignment stores the provenance record of one alignment call.
func (c *DBClient) SaveAlignment(runID, sessionID string, st model.AlignmentStats) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	rec := AlignmentRecord{
		RunID:          runID,
		SessionID:      sessionID,
		Stream:         st.Stream,
		TimebaseSource: st.TimebaseSource,
		Mapping:        string(st.Mapping),
		OffsetS:        st.OffsetSec,
		MaxJitterS:     st.MaxJitterSec,
		P95JitterS:     st.P95JitterSec,
		AlignedSamples: st.AlignedSamples,
		GeneratedAt:    st.GeneratedAt,
	}
	if err := c.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("storing alignment record: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for a session ("" for all sessions).
func (c *DBClient) ListRuns(sessionID string, limit int) ([]Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	q := c.DB.Order("created_at DESC").Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// AlignmentsForRun returns the alignment provenance rows of one run.
func (c *DBClient) AlignmentsForRun(runID string) ([]AlignmentRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var recs []AlignmentRecord
	if err := c.DB.Where("run_id = ?", runID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing alignments: %w", err)
	}
	return recs, nil
}
