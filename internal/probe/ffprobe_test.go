package probe

import (
	"testing"
)

const sampleProbeJSON = `{
  "format": {"filename": "cam0_body.mp4", "duration": "286.000000"},
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1280,
      "height": 1024,
      "avg_frame_rate": "30000/1001",
      "r_frame_rate": "30000/1001",
      "nb_frames": "8580",
      "duration": "286.000000"
    }
  ]
}`

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput("/data/cam0_body.mp4", []byte(sampleProbeJSON))
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if meta.Codec != "h264" {
		t.Errorf("codec = %q, want h264", meta.Codec)
	}
	if meta.Width != 1280 || meta.Height != 1024 {
		t.Errorf("resolution = %dx%d, want 1280x1024", meta.Width, meta.Height)
	}
	if meta.FrameCount != 8580 {
		t.Errorf("frame count = %d, want 8580", meta.FrameCount)
	}
	if meta.FPSNum != 30000 || meta.FPSDen != 1001 {
		t.Errorf("fps rational = %d/%d, want 30000/1001", meta.FPSNum, meta.FPSDen)
	}
	if meta.DurationSec != 286.0 {
		t.Errorf("duration = %f, want 286.0", meta.DurationSec)
	}
}

func TestParseProbeOutputFrameCountFallback(t *testing.T) {
	// MKV-style output without nb_frames: frame count comes from duration*fps.
	json := `{
      "format": {"duration": "10.000000"},
      "streams": [{"codec_type": "video", "codec_name": "ffv1",
        "avg_frame_rate": "60/1", "nb_frames": ""}]
    }`

	meta, err := parseProbeOutput("x.mkv", []byte(json))
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}
	if meta.FrameCount != 600 {
		t.Errorf("frame count = %d, want 600", meta.FrameCount)
	}
}

func TestParseProbeOutputNoVideoStream(t *testing.T) {
	json := `{"format": {"duration": "1.0"}, "streams": [{"codec_type": "audio"}]}`
	if _, err := parseProbeOutput("a.wav", []byte(json)); err == nil {
		t.Fatal("expected error for file without video stream")
	}
}

func TestParseProbeOutputGarbage(t *testing.T) {
	if _, err := parseProbeOutput("x.mp4", []byte("not json")); err == nil {
		t.Fatal("expected error for unparsable probe output")
	}
	if _, err := parseProbeOutput("x.mp4", []byte(sampleProbeJSON)); err != nil {
		t.Fatalf("control case failed: %v", err)
	}
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
		wantErr  bool
	}{
		{"30000/1001", 30000, 1001, false},
		{"60/2", 30, 1, false},
		{"25", 25, 1, false},
		{"0/1", 0, 0, true},
		{"abc", 0, 0, true},
		{"30/-1", 0, 0, true},
	}

	for _, tt := range tests {
		num, den, err := parseRational(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRational(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRational(%q): %v", tt.in, err)
			continue
		}
		if num != tt.num || den != tt.den {
			t.Errorf("parseRational(%q) = %d/%d, want %d/%d", tt.in, num, den, tt.num, tt.den)
		}
	}
}
