package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads, defaults, and validates a TOML configuration file. Unknown keys
// are rejected so typos never silently change pipeline behavior.
func Load(path string) (*Config, error) {
	var cfg Config

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("parsing %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	// Absolutize the root before defaulting so the derived directories
	// inherit an absolute base.
	if cfg.Session.Root != "" && !filepath.IsAbs(cfg.Session.Root) {
		abs, err := filepath.Abs(cfg.Session.Root)
		if err != nil {
			return nil, fmt.Errorf("resolving session root: %w", err)
		}
		cfg.Session.Root = abs
	}

	cfg.applyDefaults()
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timebase.Mapping == "" {
		c.Timebase.Mapping = "nearest"
	}
	for i := range c.Cameras {
		if c.Cameras[i].Order == "" {
			c.Cameras[i].Order = OrderNameAsc
		}
	}
	for i := range c.TTLs {
		if c.TTLs[i].Order == "" {
			c.TTLs[i].Order = OrderNameAsc
		}
	}
	if c.Session.OutputDir == "" && c.Session.Root != "" {
		c.Session.OutputDir = filepath.Join(c.Session.Root, "derived")
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "sessionsync.sqlite3"
	}
	if c.Encode.Codec == "" {
		c.Encode.Codec = "libx264"
	}
	if c.Encode.OutputDir == "" && c.Session.OutputDir != "" {
		c.Encode.OutputDir = filepath.Join(c.Session.OutputDir, "mezzanine")
	}
	if c.Pose.TimeoutSec == 0 {
		c.Pose.TimeoutSec = 3600
	}
	if c.Facemap.TimeoutSec == 0 {
		c.Facemap.TimeoutSec = 3600
	}
}
