// Package config handles pipeline configuration loading and validation.
package config

import (
	"encoding/json"
	"os"

	"sessionsync/internal/model"
)

// Timebase sources.
const (
	SourceNominal  = "nominal_rate"
	SourceTTL      = "ttl"
	SourceExternal = "external"
)

// Discovery ordering rules.
const (
	OrderNameAsc   = "name_asc"
	OrderNameDesc  = "name_desc"
	OrderMtimeAsc  = "mtime_asc"
	OrderMtimeDesc = "mtime_desc"
)

// Config is the full pipeline configuration for one session run.
// It is validated at load time and treated as immutable afterwards.
type Config struct {
	Session      SessionConfig      `toml:"session" json:"session"`
	Cameras      []CameraConfig     `toml:"cameras" json:"cameras"`
	TTLs         []TTLConfig        `toml:"ttls" json:"ttls"`
	Bpod         BpodConfig         `toml:"bpod" json:"bpod"`
	Timebase     TimebaseConfig     `toml:"timebase" json:"timebase"`
	Verification VerificationConfig `toml:"verification" json:"verification"`
	Encode       EncodeConfig       `toml:"encode" json:"encode"`
	Pose         InferenceConfig    `toml:"pose" json:"pose"`
	Facemap      InferenceConfig    `toml:"facemap" json:"facemap"`
	Storage      StorageConfig      `toml:"storage" json:"storage"`
}

// SessionConfig identifies the session and its filesystem roots.
type SessionConfig struct {
	ID        string `toml:"id" json:"id"`
	Root      string `toml:"root" json:"root"`
	OutputDir string `toml:"output_dir" json:"output_dir"`
}

// CameraConfig declares how one camera's video files are discovered.
type CameraConfig struct {
	ID          string `toml:"id" json:"id"`
	Glob        string `toml:"glob" json:"glob"`
	Order       string `toml:"order" json:"order"` // defaults to name_asc
	TTLID       string `toml:"ttl" json:"ttl"`
	SamplesGlob string `toml:"samples_glob" json:"samples_glob"` // optional derived-sample sidecar
}

// TTLConfig declares how one TTL channel's pulse files are discovered.
type TTLConfig struct {
	ID    string `toml:"id" json:"id"`
	Glob  string `toml:"glob" json:"glob"`
	Order string `toml:"order" json:"order"`
}

// BpodConfig declares the optional behavioral-event log discovery.
type BpodConfig struct {
	Glob string `toml:"glob" json:"glob"`
}

// TimebaseConfig selects the reference timebase and alignment policy.
type TimebaseConfig struct {
	Source        string  `toml:"source" json:"source"`
	RateHz        float64 `toml:"rate_hz" json:"rate_hz"`
	Mapping       string  `toml:"mapping" json:"mapping"`
	JitterBudgetS float64 `toml:"jitter_budget_s" json:"jitter_budget_s"`
	OffsetS       float64 `toml:"offset_s" json:"offset_s"`
	RefChannel    string  `toml:"ref_channel" json:"ref_channel"`
	EnforceBudget bool    `toml:"enforce_budget" json:"enforce_budget"`
}

// VerificationConfig holds the frame/pulse reconciliation policy.
type VerificationConfig struct {
	Tolerance      int  `toml:"tolerance" json:"tolerance"`
	WarnOnMismatch bool `toml:"warn_on_mismatch" json:"warn_on_mismatch"`
}

// EncodeConfig controls the optional mezzanine transcode stage.
type EncodeConfig struct {
	Enabled   bool     `toml:"enabled" json:"enabled"`
	Codec     string   `toml:"codec" json:"codec"`
	ExtraArgs []string `toml:"extra_args" json:"extra_args"`
	OutputDir string   `toml:"output_dir" json:"output_dir"`
}

// InferenceConfig controls an optional external inference stage.
type InferenceConfig struct {
	Enabled    bool     `toml:"enabled" json:"enabled"`
	Command    string   `toml:"command" json:"command"`
	Model      string   `toml:"model" json:"model"`
	ExtraArgs  []string `toml:"extra_args" json:"extra_args"`
	TimeoutSec int      `toml:"timeout_sec" json:"timeout_sec"`
}

// StorageConfig locates the provenance database.
type StorageConfig struct {
	DBPath string `toml:"db_path" json:"db_path"`
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SESSIONSYNC_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("SESSIONSYNC_OUTPUT_DIR"); v != "" {
		c.Session.OutputDir = v
	}
}

// Snapshot renders the configuration as a JSON provenance string.
func (c *Config) Snapshot() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(b)
}

// TTL returns the declared TTL config with the given id, or nil.
func (c *Config) TTL(id string) *TTLConfig {
	for i := range c.TTLs {
		if c.TTLs[i].ID == id {
			return &c.TTLs[i]
		}
	}
	return nil
}

// ModelMapping converts the configured mapping string to the domain type.
func (c *TimebaseConfig) ModelMapping() model.Mapping {
	if c.Mapping == string(model.MappingLinear) {
		return model.MappingLinear
	}
	return model.MappingNearest
}
