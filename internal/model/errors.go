package model

import "fmt"

// MissingInputError reports a required discovery pattern that matched nothing.
// It aborts the whole run.
type MissingInputError struct {
	Kind    string // "camera", "ttl", ...
	ID      string
	Pattern string
	Root    string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input: %s %q matched no files (pattern %q under %s)",
		e.Kind, e.ID, e.Pattern, e.Root)
}

// VerificationError reports a camera whose frame/pulse mismatch exceeded the
// configured tolerance.
type VerificationError struct {
	CameraID  string
	TTLID     string
	Frames    int
	Pulses    int
	Mismatch  int
	Tolerance int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: camera %q frames=%d pulses=%d (ttl %q) mismatch=%d exceeds tolerance=%d",
		e.CameraID, e.Frames, e.Pulses, e.TTLID, e.Mismatch, e.Tolerance)
}

// SyncError reports a timebase that cannot be constructed from its source.
type SyncError struct {
	Source string
	Reason string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync error: timebase source %q: %s", e.Source, e.Reason)
}

// JitterBudgetError reports alignment jitter above the configured budget.
// Fatal for the alignment call only, not the whole run.
type JitterBudgetError struct {
	Stream   string
	BudgetS  float64
	MaxS     float64
	Mapping  Mapping
	NSamples int
}

func (e *JitterBudgetError) Error() string {
	return fmt.Sprintf("jitter budget exceeded: stream %q max jitter %.6fs > budget %.6fs (%s mapping, %d samples)",
		e.Stream, e.MaxS, e.BudgetS, e.Mapping, e.NSamples)
}

// ToolError reports an external tool failure (probe, encode, inference) for a
// single unit of work. Batch stages isolate these per item.
type ToolError struct {
	Tool   string
	Path   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed on %s: %v (%s)", e.Tool, e.Path, e.Err, e.Output)
	}
	return fmt.Sprintf("%s failed on %s: %v", e.Tool, e.Path, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
