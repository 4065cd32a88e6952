package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func validOrder(o string) bool {
	switch o {
	case "", OrderNameAsc, OrderNameDesc, OrderMtimeAsc, OrderMtimeDesc:
		return true
	}
	return false
}

// Validate checks the full configuration. It returns ValidationErrors listing
// every violated constraint, not just the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Session.ID == "" {
		errs = append(errs, ValidationError{"session.id", "must not be empty"})
	}
	if c.Session.Root == "" {
		errs = append(errs, ValidationError{"session.root", "must not be empty"})
	}

	if len(c.Cameras) == 0 {
		errs = append(errs, ValidationError{"cameras", "at least one camera is required"})
	}
	for i, cam := range c.Cameras {
		field := fmt.Sprintf("cameras[%d]", i)
		if cam.ID == "" {
			errs = append(errs, ValidationError{field + ".id", "must not be empty"})
		}
		if cam.Glob == "" {
			errs = append(errs, ValidationError{field + ".glob", "must not be empty"})
		}
		if !validOrder(cam.Order) {
			errs = append(errs, ValidationError{field + ".order", fmt.Sprintf("unknown ordering rule %q", cam.Order)})
		}
		if cam.TTLID != "" && c.TTL(cam.TTLID) == nil {
			errs = append(errs, ValidationError{field + ".ttl", fmt.Sprintf("references undeclared ttl channel %q", cam.TTLID)})
		}
	}

	for i, ttl := range c.TTLs {
		field := fmt.Sprintf("ttls[%d]", i)
		if ttl.ID == "" {
			errs = append(errs, ValidationError{field + ".id", "must not be empty"})
		}
		if ttl.Glob == "" {
			errs = append(errs, ValidationError{field + ".glob", "must not be empty"})
		}
		if !validOrder(ttl.Order) {
			errs = append(errs, ValidationError{field + ".order", fmt.Sprintf("unknown ordering rule %q", ttl.Order)})
		}
	}

	switch c.Timebase.Source {
	case SourceNominal:
		if c.Timebase.RateHz <= 0 {
			errs = append(errs, ValidationError{"timebase.rate_hz", "must be > 0 for nominal_rate source"})
		}
	case SourceTTL, SourceExternal:
		// Sources derived from discovered streams need a reference channel.
		if c.Timebase.RefChannel == "" {
			errs = append(errs, ValidationError{"timebase.ref_channel", fmt.Sprintf("required when source is %q", c.Timebase.Source)})
		} else if c.Timebase.Source == SourceTTL && c.TTL(c.Timebase.RefChannel) == nil {
			errs = append(errs, ValidationError{"timebase.ref_channel", fmt.Sprintf("references undeclared ttl channel %q", c.Timebase.RefChannel)})
		}
	case "":
		errs = append(errs, ValidationError{"timebase.source", "must not be empty"})
	default:
		errs = append(errs, ValidationError{"timebase.source", fmt.Sprintf("unknown source %q", c.Timebase.Source)})
	}

	switch c.Timebase.Mapping {
	case "", "nearest", "linear":
	default:
		errs = append(errs, ValidationError{"timebase.mapping", fmt.Sprintf("unknown mapping %q", c.Timebase.Mapping)})
	}

	if c.Timebase.JitterBudgetS < 0 {
		errs = append(errs, ValidationError{"timebase.jitter_budget_s", "must be >= 0"})
	}
	if c.Verification.Tolerance < 0 {
		errs = append(errs, ValidationError{"verification.tolerance", "must be >= 0"})
	}

	if c.Pose.Enabled && c.Pose.Command == "" {
		errs = append(errs, ValidationError{"pose.command", "required when pose stage is enabled"})
	}
	if c.Facemap.Enabled && c.Facemap.Command == "" {
		errs = append(errs, ValidationError{"facemap.command", "required when facemap stage is enabled"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
