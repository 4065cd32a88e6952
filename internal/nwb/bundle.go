// Package nwb hands aligned session bundles to the file-assembly collaborator.
// The standardized neurophysiology writer itself is an external tool; the
// default sink materializes the bundle as a JSON sidecar it can consume.
package nwb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sessionsync/internal/model"
	"sessionsync/pkg/utils"
)

// AlignedStream is one derived-data stream mapped onto the reference timebase.
type AlignedStream struct {
	Name   string                `json:"name"`
	Source string                `json:"source_file,omitempty"`
	Result model.AlignmentResult `json:"alignment"`
	Stats  model.AlignmentStats  `json:"stats"`
}

// Bundle is everything the assembly sink needs to emit a session file.
type Bundle struct {
	SessionID    string                     `json:"session_id"`
	RunID        string                     `json:"run_id"`
	Manifest     *model.Manifest            `json:"manifest"`
	Verification *model.VerificationSummary `json:"verification"`
	Streams      []AlignedStream            `json:"streams"`
	Mezzanine    map[string]string          `json:"mezzanine,omitempty"` // input -> encoded output
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// Assembler is the file-assembly collaborator consumed by the orchestrator.
type Assembler interface {
	Assemble(ctx context.Context, b *Bundle) (string, error)
}

// BundleWriter writes the bundle as pretty-printed JSON next to the session's
// derived data.
type BundleWriter struct {
	OutputDir string
}

func (w *BundleWriter) Assemble(_ context.Context, b *Bundle) (string, error) {
	if err := utils.MakeDir(w.OutputDir); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	b.GeneratedAt = time.Now().UTC()
	path := filepath.Join(w.OutputDir, fmt.Sprintf("%s.bundle.json", b.SessionID))

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding bundle: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing bundle: %w", err)
	}
	if err := utils.MoveFile(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}
