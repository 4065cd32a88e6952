// Package inference drives external pose-estimation and motion-energy tools
// over batches of session videos.
package inference

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

// ItemResult is the isolated outcome of one input in a batch. A failing item
// never aborts its siblings.
type ItemResult struct {
	Input  string
	Output string
	Err    error
}

// Runner is the inference collaborator consumed by the orchestrator.
type Runner interface {
	Name() string
	// Run fans the batch out item by item. It returns an error only for a
	// structural pre-flight failure (missing command or model); per-item
	// failures land in the result list.
	Run(ctx context.Context, inputs []string) ([]ItemResult, error)
}

// CommandRunner invokes a configured external binary once per input.
type CommandRunner struct {
	Stage        string // "pose" or "facemap"; used for naming and logs
	Command      string
	ModelPath    string
	ExtraArgs    []string
	OutputDir    string
	OutputSuffix string // appended to the input stem, e.g. "_pose.csv"
	Timeout      time.Duration
	Log          *logger.Logger
}

const defaultItemTimeout = time.Hour

func (r *CommandRunner) Name() string { return r.Stage }

func (r *CommandRunner) preflight() error {
	if r.Command == "" {
		return fmt.Errorf("%s: no command configured", r.Stage)
	}
	if r.ModelPath != "" {
		if _, err := os.Stat(r.ModelPath); err != nil {
			return fmt.Errorf("%s: model %s not readable: %w", r.Stage, r.ModelPath, err)
		}
	}
	return nil
}

// outputFor names the expected tool output for an input, or "" when the tool
// manages its own outputs (no suffix configured).
func (r *CommandRunner) outputFor(input string) string {
	if r.OutputSuffix == "" {
		return ""
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(r.OutputDir, stem+r.OutputSuffix)
}

// Run executes the tool for every input, isolating per-item failures.
func (r *CommandRunner) Run(ctx context.Context, inputs []string) ([]ItemResult, error) {
	if err := r.preflight(); err != nil {
		return nil, err
	}
	if r.OutputDir != "" {
		if err := utils.MakeDir(r.OutputDir); err != nil {
			return nil, fmt.Errorf("%s: creating output dir: %w", r.Stage, err)
		}
	}

	log := r.Log
	if log == nil {
		log = logger.GetLogger()
	}

	results := make([]ItemResult, 0, len(inputs))
	for _, input := range inputs {
		res := ItemResult{Input: input, Output: r.outputFor(input)}
		res.Err = r.runOne(ctx, input, res.Output)
		if res.Err != nil {
			log.Warnf("%s failed for %s: %v", r.Stage, filepath.Base(input), res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *CommandRunner) runOne(parent context.Context, input, output string) error {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultItemTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	args := make([]string, 0, len(r.ExtraArgs)+4)
	args = append(args, r.ExtraArgs...)
	if r.ModelPath != "" {
		args = append(args, "--model", r.ModelPath)
	}
	if output != "" {
		args = append(args, "--output", output)
	}
	args = append(args, input)

	cmd := exec.CommandContext(ctx, r.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return &model.ToolError{Tool: r.Command, Path: input, Err: ctx.Err()}
		}
		return &model.ToolError{Tool: r.Command, Path: input, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return nil
}
