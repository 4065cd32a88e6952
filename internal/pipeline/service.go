// Package pipeline sequences manifest discovery, verification, timebase
// construction, alignment, and the optional encode/inference/assembly stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"sessionsync/internal/align"
	"sessionsync/internal/config"
	"sessionsync/internal/encode"
	"sessionsync/internal/inference"
	"sessionsync/internal/manifest"
	"sessionsync/internal/model"
	"sessionsync/internal/nwb"
	"sessionsync/internal/probe"
	"sessionsync/internal/store"
	"sessionsync/internal/timebase"
	"sessionsync/internal/verify"
	"sessionsync/pkg/logger"
)

// Service owns one session run. Each stage receives exactly the primitives it
// needs; no stage mutates shared state.
type Service struct {
	cfg       *config.Config
	log       *logger.Logger
	prober    probe.Prober
	db        *store.DBClient
	encoder   *encode.Encoder
	pose      inference.Runner
	facemap   inference.Runner
	assembler nwb.Assembler
}

// NewService builds a Service from a validated configuration plus options.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}

	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logger.GetLogger()
	}
	if s.prober == nil {
		s.prober = &probe.FFProbe{}
	}
	if s.encoder == nil && cfg.Encode.Enabled {
		s.encoder = encode.NewEncoder(cfg.Encode.Codec, cfg.Encode.ExtraArgs, s.log)
	}
	if s.pose == nil && cfg.Pose.Enabled {
		s.pose = commandRunner("pose", cfg.Pose, cfg.Session.OutputDir, "_pose.csv", s.log)
	}
	if s.facemap == nil && cfg.Facemap.Enabled {
		s.facemap = commandRunner("facemap", cfg.Facemap, cfg.Session.OutputDir, "_motion_energy.npy", s.log)
	}
	if s.assembler == nil {
		s.assembler = &nwb.BundleWriter{OutputDir: cfg.Session.OutputDir}
	}
	if s.db == nil && cfg.Storage.DBPath != "" {
		db, err := store.NewDBClientWithPath(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: opening provenance store: %w", err)
		}
		s.db = db
	}

	return s, nil
}

func commandRunner(stage string, ic config.InferenceConfig, outDir, suffix string, log *logger.Logger) inference.Runner {
	return &inference.CommandRunner{
		Stage:        stage,
		Command:      ic.Command,
		ModelPath:    ic.Model,
		ExtraArgs:    ic.ExtraArgs,
		OutputDir:    filepath.Join(outDir, stage),
		OutputSuffix: suffix,
		Timeout:      secondsDuration(ic.TimeoutSec),
		Log:          log,
	}
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// Close releases the provenance store.
func (s *Service) Close() error {
	return s.db.Close()
}

// Run executes the whole pipeline for the configured session. Fatal stages
// (manifest, verification unless downgraded, timebase, assembly) abort and
// return an error alongside the partially filled Result; optional stages
// record their failures and let the run continue.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	res := &Result{SessionID: s.cfg.Session.ID, Status: "failed"}

	if s.db != nil {
		runID, err := s.db.CreateRun(s.cfg.Session.ID)
		if err != nil {
			return res, err
		}
		res.RunID = runID
		defer func() {
			_ = s.db.FinishRun(res.RunID, res.Status, res.Stages)
		}()
	}

	// Stage: manifest
	s.log.Infof("building manifest for session %s", s.cfg.Session.ID)
	m, err := manifest.NewBuilder(s.prober, s.log).Build(ctx, s.cfg)
	if err != nil {
		res.addStage(StageResult{Name: "manifest", Status: StageFailed, Error: err.Error()})
		return res, err
	}
	res.addStage(StageResult{Name: "manifest", Status: StageOK,
		Detail: fmt.Sprintf("%d cameras, %d ttl channels", len(m.Cameras), len(m.TTLs))})
	if s.db != nil {
		if err := s.db.SaveManifest(res.RunID, m); err != nil {
			s.log.Warnf("persisting manifest: %v", err)
		}
	}

	// Stage: verification
	summary, err := verify.Run(m, s.cfg.Verification.Tolerance, s.cfg.Verification.WarnOnMismatch)
	if s.db != nil && summary != nil {
		if perr := s.db.SaveVerification(res.RunID, summary); perr != nil {
			s.log.Warnf("persisting verification: %v", perr)
		}
	}
	if err != nil {
		res.addStage(StageResult{Name: "verify", Status: StageFailed, Error: err.Error()})
		return res, err
	}
	if summary.Warned {
		s.log.Warnf("verification mismatch exceeds tolerance %d but warn_on_mismatch is set; continuing",
			s.cfg.Verification.Tolerance)
		res.addStage(StageResult{Name: "verify", Status: StageWarned})
	} else {
		res.addStage(StageResult{Name: "verify", Status: StageOK})
	}

	// Stage: timebase
	provider, err := timebase.FromConfig(s.cfg.Timebase, m)
	if err != nil {
		res.addStage(StageResult{Name: "timebase", Status: StageFailed, Error: err.Error()})
		return res, err
	}
	reference, err := provider.Timestamps(ReferenceCount(s.cfg, m))
	if err != nil {
		res.addStage(StageResult{Name: "timebase", Status: StageFailed, Error: err.Error()})
		return res, err
	}
	res.addStage(StageResult{Name: "timebase", Status: StageOK,
		Detail: fmt.Sprintf("%s source, %d reference timestamps", provider.Source(), len(reference))})

	bundle := &nwb.Bundle{
		SessionID:    m.SessionID,
		RunID:        res.RunID,
		Manifest:     m,
		Verification: summary,
	}

	// Stage: alignment of derived sample streams
	s.alignStreams(res, m, provider, reference, bundle)

	// Stage: mezzanine encode (optional)
	if s.cfg.Encode.Enabled && s.encoder != nil {
		s.encodeVideos(ctx, res, m, bundle)
	} else {
		res.addStage(StageResult{Name: "encode", Status: StageSkipped})
	}

	// Stage: inference (optional)
	s.runInference(ctx, res, "pose", s.pose, m)
	s.runInference(ctx, res, "facemap", s.facemap, m)

	// Stage: assembly
	path, err := s.assembler.Assemble(ctx, bundle)
	if err != nil {
		res.addStage(StageResult{Name: "assemble", Status: StageFailed, Error: err.Error()})
		return res, err
	}
	res.addStage(StageResult{Name: "assemble", Status: StageOK, Detail: path})
	res.BundlePath = path

	if res.failedStages() > 0 {
		res.Status = "partial"
	} else {
		res.Status = "ok"
	}
	s.log.Infof("session %s run finished: %s", s.cfg.Session.ID, res.Status)
	return res, nil
}

// ReferenceCount picks the reference timestamp count for a session. The
// timebase is canonical per session: fixed-rate sources carry one instant per
// frame of the first camera, pulse-derived sources know their own length.
func ReferenceCount(cfg *config.Config, m *model.Manifest) int {
	if cfg.Timebase.Source != config.SourceNominal {
		return 0
	}
	if len(m.Cameras) == 0 {
		return 0
	}
	return m.Cameras[0].FrameCount
}

func (s *Service) alignStreams(res *Result, m *model.Manifest, provider timebase.Provider, reference []float64, bundle *nwb.Bundle) {
	for _, cc := range s.cfg.Cameras {
		if cc.SamplesGlob == "" {
			continue
		}

		stream := cc.ID + "_samples"
		files, err := manifest.Discover(s.cfg.Session.Root, cc.SamplesGlob, cc.Order)
		if err != nil || len(files) == 0 {
			// Derived streams are optional; absence is a skip, not a failure.
			res.addStage(StageResult{Name: "align:" + stream, Status: StageSkipped})
			continue
		}

		var samples []float64
		readFailed := false
		for _, f := range files {
			times, err := manifest.ReadSampleTimes(f)
			if err != nil {
				res.addStage(StageResult{Name: "align:" + stream, Status: StageFailed, Error: err.Error()})
				readFailed = true
				break
			}
			samples = append(samples, times...)
		}
		if readFailed {
			continue
		}

		result, err := align.Align(samples, reference, align.Options{
			Mapping:       s.cfg.Timebase.ModelMapping(),
			JitterBudgetS: s.cfg.Timebase.JitterBudgetS,
			EnforceBudget: s.cfg.Timebase.EnforceBudget,
			Stream:        stream,
		})
		if err != nil {
			// JitterBudgetError is fatal for this alignment call only.
			s.log.Warnf("alignment failed for %s: %v", stream, err)
			res.addStage(StageResult{Name: "align:" + stream, Status: StageFailed, Error: err.Error()})
			continue
		}

		stats := align.BuildStats(stream, provider.Source(), provider.Offset(), result)
		if s.db != nil {
			if err := s.db.SaveAlignment(res.RunID, m.SessionID, stats); err != nil {
				s.log.Warnf("persisting alignment stats: %v", err)
			}
		}

		bundle.Streams = append(bundle.Streams, nwb.AlignedStream{
			Name:   stream,
			Source: files[0],
			Result: *result,
			Stats:  stats,
		})
		res.addStage(StageResult{Name: "align:" + stream, Status: StageOK,
			Detail: fmt.Sprintf("%d samples, max jitter %.6fs", result.SampleSize, result.MaxJitter)})
	}
}

func (s *Service) encodeVideos(ctx context.Context, res *Result, m *model.Manifest, bundle *nwb.Bundle) {
	outDir := s.cfg.Encode.OutputDir
	mezz := make(map[string]string)
	failures := 0

	for _, cam := range m.Cameras {
		for _, video := range cam.VideoFiles {
			enc, err := s.encoder.Encode(ctx, video, outDir)
			if err != nil {
				// One failing video must not abort its siblings.
				s.log.Warnf("encode failed for %s: %v", filepath.Base(video), err)
				failures++
				continue
			}
			mezz[video] = enc.OutputPath
		}
	}

	bundle.Mezzanine = mezz
	switch {
	case failures == 0:
		res.addStage(StageResult{Name: "encode", Status: StageOK,
			Detail: fmt.Sprintf("%d outputs", len(mezz))})
	case len(mezz) > 0:
		res.addStage(StageResult{Name: "encode", Status: StageFailed,
			Error: fmt.Sprintf("%d of %d videos failed", failures, failures+len(mezz))})
	default:
		res.addStage(StageResult{Name: "encode", Status: StageFailed,
			Error: "all videos failed to encode"})
	}
}

func (s *Service) runInference(ctx context.Context, res *Result, name string, runner inference.Runner, m *model.Manifest) {
	if runner == nil {
		res.addStage(StageResult{Name: name, Status: StageSkipped})
		return
	}

	var inputs []string
	for _, cam := range m.Cameras {
		inputs = append(inputs, cam.VideoFiles...)
	}

	items, err := runner.Run(ctx, inputs)
	if err != nil {
		// Structural pre-flight failure; the run continues with the stage
		// marked failed.
		s.log.Warnf("%s stage failed: %v", name, err)
		res.addStage(StageResult{Name: name, Status: StageFailed, Error: err.Error()})
		return
	}

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		res.addStage(StageResult{Name: name, Status: StageFailed,
			Error: fmt.Sprintf("%d of %d items failed", failed, len(items))})
		return
	}
	res.addStage(StageResult{Name: name, Status: StageOK,
		Detail: fmt.Sprintf("%d items", len(items))})
}
