package model

import "time"

// VideoMetadata holds container/stream metadata for a single video file.
// It is produced by probing only; no frames are ever decoded.
type VideoMetadata struct {
	Path        string  `json:"path"`
	Codec       string  `json:"codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPSNum      int     `json:"fps_num"` // frame rate as a rational in lowest terms
	FPSDen      int     `json:"fps_den"`
	FPS         float64 `json:"fps"`
	FrameCount  int     `json:"frame_count"`
	DurationSec float64 `json:"duration_sec"`
}

// CameraEntry describes one camera discovered for a session: its ordered
// video files, the summed frame count, and the TTL channel it verifies against.
type CameraEntry struct {
	CameraID      string          `json:"camera_id"`
	TTLID         string          `json:"ttl_id"`
	VideoFiles    []string        `json:"video_files"` // absolute, in configured order
	Videos        []VideoMetadata `json:"videos"`
	FrameCount    int             `json:"frame_count"`
	TTLPulseCount int             `json:"ttl_pulse_count"`
}

// TTLEntry describes one TTL sync channel: its ordered pulse files, the total
// pulse count and the pulse instants in file order (seconds).
type TTLEntry struct {
	TTLID      string    `json:"ttl_id"`
	Files      []string  `json:"files"` // absolute, in configured order
	PulseCount int       `json:"pulse_count"`
	PulseTimes []float64 `json:"-"`
}

// Manifest is the discovered, counted inventory of a session's raw inputs.
// It is built once per run and never mutated afterwards.
type Manifest struct {
	SessionID   string        `json:"session_id"`
	SessionRoot string        `json:"session_root"`
	Cameras     []CameraEntry `json:"cameras"`
	TTLs        []TTLEntry    `json:"ttls"`
	BpodFiles   []string      `json:"bpod_files,omitempty"`
	Provenance  string        `json:"provenance"` // discovery config snapshot
	GeneratedAt time.Time     `json:"generated_at"`
}

// TTL returns the TTL entry with the given id, or nil when absent.
func (m *Manifest) TTL(id string) *TTLEntry {
	for i := range m.TTLs {
		if m.TTLs[i].TTLID == id {
			return &m.TTLs[i]
		}
	}
	return nil
}

// Camera returns the camera entry with the given id, or nil when absent.
func (m *Manifest) Camera(id string) *CameraEntry {
	for i := range m.Cameras {
		if m.Cameras[i].CameraID == id {
			return &m.Cameras[i]
		}
	}
	return nil
}
