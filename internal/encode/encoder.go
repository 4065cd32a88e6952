// Package encode transcodes raw session video into the mezzanine format used
// by downstream processing. Outputs are content-addressed so re-running a
// session is a no-op.
package encode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sessionsync/internal/model"
	"sessionsync/pkg/logger"
	"sessionsync/pkg/utils"
)

// Encoder wraps the external ffmpeg binary.
type Encoder struct {
	Codec     string
	ExtraArgs []string
	// Timeout bounds a single transcode when the caller's context has no
	// deadline.
	Timeout time.Duration
	Log     *logger.Logger
}

const defaultEncodeTimeout = 30 * time.Minute

// Result describes one (possibly reused) mezzanine output.
type Result struct {
	InputPath  string
	OutputPath string
	Key        string // content address: checksum of input content + options
	Reused     bool   // true when a pre-existing keyed output was found
}

func NewEncoder(codec string, extraArgs []string, log *logger.Logger) *Encoder {
	if codec == "" {
		codec = "libx264"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Encoder{Codec: codec, ExtraArgs: extraArgs, Log: log}
}

// ContentKey derives the output identity from the input file's content plus
// the encoding options. Identical input and options always key the same
// output.
func (e *Encoder) ContentKey(inputPath string) (string, error) {
	digest, err := utils.FileSHA256(inputPath)
	if err != nil {
		return "", err
	}
	opts := e.Codec + "\x00" + strings.Join(e.ExtraArgs, "\x00")
	return utils.SHA256Hex([]byte(digest + "\x00" + opts))[:16], nil
}

// OutputPath returns the content-addressed output location for an input.
func (e *Encoder) OutputPath(inputPath, outputDir, key string) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(outputDir, fmt.Sprintf("%s.%s.mkv", stem, key))
}

// Encode transcodes one video into outputDir. When an output keyed by the
// input's content and the encoder options already exists, it is returned
// unchanged and ffmpeg is not invoked.
func (e *Encoder) Encode(ctx context.Context, inputPath, outputDir string) (*Result, error) {
	key, err := e.ContentKey(inputPath)
	if err != nil {
		return nil, &model.ToolError{Tool: "ffmpeg", Path: inputPath, Err: err}
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return nil, &model.ToolError{Tool: "ffmpeg", Path: inputPath, Err: err}
	}

	outputPath := e.OutputPath(inputPath, outputDir, key)
	if _, err := os.Stat(outputPath); err == nil {
		e.Log.Debugf("encode: reusing %s", outputPath)
		return &Result{InputPath: inputPath, OutputPath: outputPath, Key: key, Reused: true}, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := e.Timeout
		if timeout == 0 {
			timeout = defaultEncodeTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tmpPath := outputPath + ".tmp.mkv"
	defer os.Remove(tmpPath)

	args := []string{
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-c:v", e.Codec,
		"-an", // sync streams carry no useful audio
	}
	args = append(args, e.ExtraArgs...)
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, &model.ToolError{Tool: "ffmpeg", Path: inputPath, Err: ctx.Err()}
		}
		return nil, &model.ToolError{Tool: "ffmpeg", Path: inputPath, Output: strings.TrimSpace(string(out)), Err: err}
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return nil, &model.ToolError{Tool: "ffmpeg", Path: inputPath, Err: err}
	}

	return &Result{InputPath: inputPath, OutputPath: outputPath, Key: key, Reused: false}, nil
}
