package model

import "time"

// VerifyStatus classifies the frame/pulse reconciliation outcome of a camera.
type VerifyStatus string

const (
	StatusPass            VerifyStatus = "pass"
	StatusWithinTolerance VerifyStatus = "mismatch_within_tolerance"
	StatusExceedsTol      VerifyStatus = "mismatch_exceeds_tolerance"
	StatusUnverifiable    VerifyStatus = "unverifiable"
)

// CameraVerification is the per-camera reconciliation record.
type CameraVerification struct {
	CameraID      string       `json:"camera_id"`
	TTLID         string       `json:"ttl_id"`
	FrameCount    int          `json:"frame_count"`
	TTLPulseCount int          `json:"ttl_pulse_count"`
	Mismatch      int          `json:"mismatch"` // |frame_count - ttl_pulse_count|
	Verifiable    bool         `json:"verifiable"`
	Status        VerifyStatus `json:"status"`
}

// VerificationSummary aggregates per-camera verification for a session.
// Recomputed on demand from a Manifest plus tolerance; never mutated.
type VerificationSummary struct {
	SessionID   string               `json:"session_id"`
	Tolerance   int                  `json:"tolerance"`
	Cameras     []CameraVerification `json:"cameras"`
	Warned      bool                 `json:"warned"` // exceeded tolerance but run continued
	GeneratedAt time.Time            `json:"generated_at"`
}

// Failed reports whether any camera exceeded the tolerance.
func (s *VerificationSummary) Failed() bool {
	for _, c := range s.Cameras {
		if c.Status == StatusExceedsTol {
			return true
		}
	}
	return false
}
