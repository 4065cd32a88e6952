// Package verify reconciles per-camera frame counts against TTL pulse counts.
package verify

import (
	"time"

	"sessionsync/internal/model"
)

// Run compares every camera's frame count to its TTL pulse count under the
// given tolerance. It is a deterministic pure computation over counts already
// collected in the manifest; there is nothing to retry.
//
// When a camera exceeds the tolerance the summary is returned together with a
// VerificationError for the first offending camera, unless warnOnMismatch is
// set, in which case the summary's Warned flag is raised and the caller
// decides how loudly to surface it.
func Run(m *model.Manifest, tolerance int, warnOnMismatch bool) (*model.VerificationSummary, error) {
	summary := &model.VerificationSummary{
		SessionID:   m.SessionID,
		Tolerance:   tolerance,
		GeneratedAt: time.Now().UTC(),
	}

	var firstFailure *model.VerificationError

	for _, cam := range m.Cameras {
		cv := model.CameraVerification{
			CameraID:   cam.CameraID,
			TTLID:      cam.TTLID,
			FrameCount: cam.FrameCount,
		}

		ttl := m.TTL(cam.TTLID)
		if cam.TTLID == "" || ttl == nil || ttl.PulseCount == 0 {
			// Absent or empty sync source: never silently a pass.
			cv.Verifiable = false
			cv.Status = model.StatusUnverifiable
			summary.Cameras = append(summary.Cameras, cv)
			continue
		}

		cv.TTLPulseCount = ttl.PulseCount
		cv.Verifiable = true
		cv.Mismatch = abs(cam.FrameCount - ttl.PulseCount)

		switch {
		case cv.Mismatch == 0:
			cv.Status = model.StatusPass
		case cv.Mismatch <= tolerance:
			cv.Status = model.StatusWithinTolerance
		default:
			cv.Status = model.StatusExceedsTol
			if firstFailure == nil {
				firstFailure = &model.VerificationError{
					CameraID:  cam.CameraID,
					TTLID:     cam.TTLID,
					Frames:    cam.FrameCount,
					Pulses:    ttl.PulseCount,
					Mismatch:  cv.Mismatch,
					Tolerance: tolerance,
				}
			}
		}

		summary.Cameras = append(summary.Cameras, cv)
	}

	if firstFailure != nil {
		if warnOnMismatch {
			summary.Warned = true
			return summary, nil
		}
		return summary, firstFailure
	}

	return summary, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
