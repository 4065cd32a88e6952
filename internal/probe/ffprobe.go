// Package probe extracts container/stream metadata from video files via
// ffprobe. It never decodes frame content.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sessionsync/internal/model"
)

// Prober is the video-metadata collaborator consumed by the manifest builder.
type Prober interface {
	Probe(ctx context.Context, path string) (*model.VideoMetadata, error)
}

// FFProbe shells out to the ffprobe binary.
type FFProbe struct {
	// Timeout bounds a single probe when the caller's context has no deadline.
	Timeout time.Duration
}

const defaultProbeTimeout = 10 * time.Second

type ffprobeOutput struct {
	Format struct {
		Filename string `json:"filename"`
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

func (p *ffprobeOutput) firstVideoStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// Probe runs ffprobe on a single file with a bounded timeout. A probe failure
// or unparsable output is a hard error for that video.
func (f *FFProbe) Probe(ctx context.Context, path string) (*model.VideoMetadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := f.Timeout
		if timeout == 0 {
			timeout = defaultProbeTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, &model.ToolError{Tool: "ffprobe", Path: path, Err: ctx.Err()}
		}
		return nil, &model.ToolError{Tool: "ffprobe", Path: path, Err: err}
	}

	meta, err := parseProbeOutput(path, out)
	if err != nil {
		return nil, &model.ToolError{Tool: "ffprobe", Path: path, Err: err}
	}
	return meta, nil
}

// parseProbeOutput decodes ffprobe JSON into VideoMetadata. Split out from
// Probe so parsing is testable without the binary.
func parseProbeOutput(path string, out []byte) (*model.VideoMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parsing ffprobe json: %w", err)
	}

	vs := probe.firstVideoStream()
	if vs == nil {
		return nil, errors.New("no video stream found")
	}

	rate := vs.AvgFrameRate
	if rate == "" || rate == "0/0" {
		rate = vs.RFrameRate
	}
	num, den, err := parseRational(rate)
	if err != nil {
		return nil, fmt.Errorf("parsing frame rate %q: %w", rate, err)
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	if duration == 0 && vs.Duration != "" {
		duration, _ = strconv.ParseFloat(vs.Duration, 64)
	}

	fps := float64(num) / float64(den)

	frames := 0
	if vs.NBFrames != "" {
		frames, _ = strconv.Atoi(vs.NBFrames)
	}
	if frames == 0 && duration > 0 {
		// Containers like MKV omit nb_frames; fall back to duration * fps.
		frames = int(math.Round(duration * fps))
	}
	if frames <= 0 {
		return nil, errors.New("could not determine frame count")
	}

	return &model.VideoMetadata{
		Path:        path,
		Codec:       vs.CodecName,
		Width:       vs.Width,
		Height:      vs.Height,
		FPSNum:      num,
		FPSDen:      den,
		FPS:         fps,
		FrameCount:  frames,
		DurationSec: duration,
	}, nil
}

// parseRational parses "num/den" (or a bare integer) and reduces it to lowest
// terms.
func parseRational(s string) (num, den int, err error) {
	den = 1
	parts := strings.SplitN(s, "/", 2)
	num, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 2 {
		den, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, err
		}
	}
	if num <= 0 || den <= 0 {
		return 0, 0, fmt.Errorf("non-positive rational %d/%d", num, den)
	}
	g := gcd(num, den)
	return num / g, den / g, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
