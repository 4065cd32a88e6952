package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"sessionsync/internal/align"
	"sessionsync/internal/config"
	"sessionsync/internal/manifest"
	"sessionsync/internal/pipeline"
	"sessionsync/internal/probe"
	"sessionsync/internal/store"
	"sessionsync/internal/timebase"
	"sessionsync/internal/verify"
	"sessionsync/pkg/logger"
)

// Global flags
var (
	configPath string
	dbPath     string
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("SESSIONSYNC_CONFIG", "session.toml"), "Path to the session TOML configuration")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SESSIONSYNC_DB_PATH", store.DefaultDBFile), "Path to the SQLite provenance database")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// flagPassed reports whether the named global flag appeared on the command
// line, as opposed to holding its default value.
func flagPassed(fs *flag.FlagSet, name string) bool {
	passed := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

func loadConfig() *config.Config {
	log := logger.GetLogger()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error: invalid configuration %s: %v\n", configPath, err)
		log.Errorf("config load failed: %v", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	log := logger.GetLogger()

	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	log.Infof("Executing command: %s", command)

	switch command {
	case "manifest":
		handleManifest()
	case "verify":
		handleVerify()
	case "align":
		handleAlign()
	case "run":
		handleRun()
	case "runs":
		handleRuns()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// handleManifest builds and prints the session manifest without persisting
// or verifying anything.
func handleManifest() {
	log := logger.GetLogger()
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	m, err := manifest.NewBuilder(&probe.FFProbe{}, log).Build(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: manifest build failed: %v\n", err)
		log.Errorf("manifest build failed: %v", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		fmt.Printf("Error: encoding manifest: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// handleVerify builds the manifest and reconciles frame counts against TTL
// pulse counts, exiting non-zero when any camera exceeds the tolerance.
func handleVerify() {
	log := logger.GetLogger()
	cfg := loadConfig()

	verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
	tolerance := verifyCmd.Int("tolerance", cfg.Verification.Tolerance, "Allowed |frames - pulses| mismatch per camera")
	verifyCmd.Parse(flag.Args()[1:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	m, err := manifest.NewBuilder(&probe.FFProbe{}, log).Build(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: manifest build failed: %v\n", err)
		log.Errorf("manifest build failed: %v", err)
		os.Exit(1)
	}

	summary, verr := verify.Run(m, *tolerance, false)
	if summary != nil {
		fmt.Printf("Session %s (tolerance %d):\n", summary.SessionID, summary.Tolerance)
		for _, c := range summary.Cameras {
			fmt.Printf("  %-12s frames=%-7d pulses=%-7d mismatch=%-4d %s\n",
				c.CameraID, c.FrameCount, c.TTLPulseCount, c.Mismatch, c.Status)
		}
	}
	if verr != nil {
		fmt.Printf("\nVerification failed: %v\n", verr)
		log.Errorf("verification failed: %v", verr)
		os.Exit(1)
	}
	fmt.Println("\nVerification passed")
}

// handleAlign builds the manifest, constructs the reference timebase, and
// aligns each camera's derived-sample sidecars, printing jitter statistics.
func handleAlign() {
	log := logger.GetLogger()
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	m, err := manifest.NewBuilder(&probe.FFProbe{}, log).Build(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: manifest build failed: %v\n", err)
		os.Exit(1)
	}

	provider, err := timebase.FromConfig(cfg.Timebase, m)
	if err != nil {
		fmt.Printf("Error: timebase: %v\n", err)
		log.Errorf("timebase construction failed: %v", err)
		os.Exit(1)
	}

	// One canonical reference grid per session, shared by every stream.
	reference, err := provider.Timestamps(pipeline.ReferenceCount(cfg, m))
	if err != nil {
		fmt.Printf("Error: reference timestamps: %v\n", err)
		log.Errorf("reference timestamps failed: %v", err)
		os.Exit(1)
	}

	failures := 0
	for _, cc := range cfg.Cameras {
		if cc.SamplesGlob == "" {
			continue
		}
		stream := cc.ID + "_samples"

		files, err := manifest.Discover(cfg.Session.Root, cc.SamplesGlob, cc.Order)
		if err != nil || len(files) == 0 {
			fmt.Printf("  %-20s (no sample files)\n", stream)
			continue
		}

		var samples []float64
		for _, f := range files {
			times, err := manifest.ReadSampleTimes(f)
			if err != nil {
				fmt.Printf("Error: reading %s: %v\n", f, err)
				os.Exit(1)
			}
			samples = append(samples, times...)
		}

		res, err := align.Align(samples, reference, align.Options{
			Mapping:       cfg.Timebase.ModelMapping(),
			JitterBudgetS: cfg.Timebase.JitterBudgetS,
			EnforceBudget: cfg.Timebase.EnforceBudget,
			Stream:        stream,
		})
		if err != nil {
			fmt.Printf("  %-20s FAILED: %v\n", stream, err)
			log.Errorf("alignment failed for %s: %v", stream, err)
			failures++
			continue
		}
		fmt.Printf("  %-20s samples=%-7d max_jitter=%.6fs p95_jitter=%.6fs (%s)\n",
			stream, res.SampleSize, res.MaxJitter, res.P95Jitter, res.Mapping)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

// handleRun executes the full pipeline for the configured session.
func handleRun() {
	log := logger.GetLogger()
	cfg := loadConfig()
	if flagPassed(flag.CommandLine, "db") {
		cfg.Storage.DBPath = dbPath
	}

	svc, err := pipeline.NewService(cfg)
	if err != nil {
		fmt.Printf("Error: initializing pipeline: %v\n", err)
		log.Errorf("service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()

	res, err := svc.Run(ctx)
	printStages(res)
	if err != nil {
		fmt.Printf("\nRun failed: %v\n", err)
		log.Errorf("run failed: %v", err)
		os.Exit(1)
	}
	if res.BundlePath != "" {
		fmt.Printf("\nBundle: %s\n", res.BundlePath)
	}
	fmt.Printf("Run %s finished: %s\n", res.RunID, res.Status)
	if res.Status != "ok" {
		os.Exit(1)
	}
}

func printStages(res *pipeline.Result) {
	if res == nil {
		return
	}
	for _, s := range res.Stages {
		line := fmt.Sprintf("  %-22s %s", s.Name, s.Status)
		if s.Detail != "" {
			line += "  " + s.Detail
		}
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Println(line)
	}
}

// handleRuns lists past pipeline runs from the provenance database.
func handleRuns() {
	log := logger.GetLogger()

	runsCmd := flag.NewFlagSet("runs", flag.ExitOnError)
	session := runsCmd.String("session", "", "Filter by session id")
	limit := runsCmd.Int("limit", 20, "Maximum number of runs to list")
	showAlign := runsCmd.Bool("alignments", false, "Also print alignment statistics per run")
	runsCmd.Parse(flag.Args()[1:])

	db, err := store.NewDBClientWithPath(dbPath)
	if err != nil {
		fmt.Printf("Error: opening database %s: %v\n", dbPath, err)
		log.Errorf("database open failed: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	runs, err := db.ListRuns(*session, *limit)
	if err != nil {
		fmt.Printf("Error: listing runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}

	for _, r := range runs {
		fmt.Printf("%s  %-24s %-8s %s\n",
			r.ID, r.SessionID, r.Status, r.CreatedAt.Format(time.RFC3339))
		if *showAlign {
			recs, err := db.AlignmentsForRun(r.ID)
			if err != nil {
				log.Warnf("loading alignments for %s: %v", r.ID, err)
				continue
			}
			for _, a := range recs {
				fmt.Printf("    %-20s max=%.6fs p95=%.6fs samples=%d (%s/%s)\n",
					a.Stream, a.MaxJitterS, a.P95JitterS, a.AlignedSamples, a.TimebaseSource, a.Mapping)
			}
		}
	}
}

func printUsage() {
	fmt.Println("sessionsync - behavioral session synchronization pipeline")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <path>    Session TOML configuration (env: SESSIONSYNC_CONFIG, default: session.toml)")
	fmt.Printf("  --db <path>        SQLite provenance database (env: SESSIONSYNC_DB_PATH, default: %s)\n", store.DefaultDBFile)
	fmt.Println("\nUsage:")
	fmt.Println("  sessionsync [global-options] manifest")
	fmt.Println("  sessionsync [global-options] verify [--tolerance <n>]")
	fmt.Println("  sessionsync [global-options] align")
	fmt.Println("  sessionsync [global-options] run")
	fmt.Println("  sessionsync [global-options] runs [--session <id>] [--limit <n>] [--alignments]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Build and inspect the session manifest")
	fmt.Println("  sessionsync --config sessions/sub001.toml manifest")
	fmt.Println()
	fmt.Println("  # Reconcile frame counts against TTL pulses with a looser tolerance")
	fmt.Println("  sessionsync --config sessions/sub001.toml verify --tolerance 2")
	fmt.Println()
	fmt.Println("  # Run the whole pipeline and record provenance")
	fmt.Println("  sessionsync --config sessions/sub001.toml run")
	fmt.Println()
	fmt.Println("  # Inspect past runs")
	fmt.Println("  sessionsync runs --session sub001_2026-08-01 --alignments")
}
