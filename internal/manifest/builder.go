// Package manifest discovers and counts a session's raw input files.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"sessionsync/internal/config"
	"sessionsync/internal/model"
	"sessionsync/internal/probe"
	"sessionsync/pkg/logger"
)

// Builder assembles a Manifest from declarative discovery configuration.
// It performs read-only filesystem and probe calls and has no other side
// effects.
type Builder struct {
	Prober probe.Prober
	Log    *logger.Logger
}

func NewBuilder(p probe.Prober, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Builder{Prober: p, Log: log}
}

// Build resolves every configured pattern under the session root, probes each
// video, counts TTL pulses, and returns an immutable Manifest with absolute
// paths. Required patterns that match nothing yield a MissingInputError.
func (b *Builder) Build(ctx context.Context, cfg *config.Config) (*model.Manifest, error) {
	root := cfg.Session.Root

	m := &model.Manifest{
		SessionID:   cfg.Session.ID,
		SessionRoot: root,
		Provenance:  cfg.Snapshot(),
		GeneratedAt: time.Now().UTC(),
	}

	for _, tc := range cfg.TTLs {
		files, err := Discover(root, tc.Glob, tc.Order)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, &model.MissingInputError{Kind: "ttl", ID: tc.ID, Pattern: tc.Glob, Root: root}
		}

		entry := model.TTLEntry{TTLID: tc.ID, Files: files}
		allParsed := true
		for _, f := range files {
			count, times, err := CountPulses(f)
			if err != nil {
				return nil, err
			}
			entry.PulseCount += count
			if times == nil {
				allParsed = false
			} else {
				entry.PulseTimes = append(entry.PulseTimes, times...)
			}
		}
		if !allParsed {
			entry.PulseTimes = nil
		}
		b.Log.Infof("ttl %s: %d pulses across %d file(s)", tc.ID, entry.PulseCount, len(files))
		m.TTLs = append(m.TTLs, entry)
	}

	for _, cc := range cfg.Cameras {
		files, err := Discover(root, cc.Glob, cc.Order)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, &model.MissingInputError{Kind: "camera", ID: cc.ID, Pattern: cc.Glob, Root: root}
		}

		entry := model.CameraEntry{CameraID: cc.ID, TTLID: cc.TTLID, VideoFiles: files}
		for _, f := range files {
			meta, err := b.Prober.Probe(ctx, f)
			if err != nil {
				return nil, err
			}
			entry.Videos = append(entry.Videos, *meta)
			entry.FrameCount += meta.FrameCount

			if st, serr := os.Stat(f); serr == nil {
				b.Log.Infof("camera %s: %s %s %dx%d %d frames %.1fs (%s)",
					cc.ID, filepath.Base(f), meta.Codec, meta.Width, meta.Height,
					meta.FrameCount, meta.DurationSec, humanize.Bytes(uint64(st.Size())))
			}
		}
		if ttl := m.TTL(cc.TTLID); ttl != nil {
			entry.TTLPulseCount = ttl.PulseCount
		}
		m.Cameras = append(m.Cameras, entry)
	}

	if cfg.Bpod.Glob != "" {
		files, err := Discover(root, cfg.Bpod.Glob, config.OrderNameAsc)
		if err != nil {
			return nil, err
		}
		// Bpod logs are optional; absence just leaves the list empty.
		m.BpodFiles = files
		if len(files) > 0 {
			b.Log.Infof("bpod: %d file(s)", len(files))
		}
	}

	return m, nil
}

// Discover resolves a glob under root and returns absolute paths in the
// deterministic order requested, regardless of filesystem enumeration order.
func Discover(root, pattern, order string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", m, err)
		}
		paths = append(paths, abs)
	}

	switch order {
	case config.OrderNameDesc:
		sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	case config.OrderMtimeAsc, config.OrderMtimeDesc:
		type stamped struct {
			path string
			mod  time.Time
		}
		st := make([]stamped, 0, len(paths))
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", p, err)
			}
			st = append(st, stamped{p, info.ModTime()})
		}
		sort.Slice(st, func(i, j int) bool {
			if st[i].mod.Equal(st[j].mod) {
				return st[i].path < st[j].path // stable fallback
			}
			if order == config.OrderMtimeAsc {
				return st[i].mod.Before(st[j].mod)
			}
			return st[i].mod.After(st[j].mod)
		})
		for i := range st {
			paths[i] = st[i].path
		}
	default: // name_asc
		sort.Strings(paths)
	}

	return paths, nil
}
