// Package timebase produces the canonical reference timestamp sequence a
// session's derived data is aligned against.
package timebase

import (
	"fmt"

	"sessionsync/internal/config"
	"sessionsync/internal/model"
)

// Provider yields reference timestamps for a session. Implementations
// guarantee monotonic non-decreasing output; the nominal variant is strictly
// increasing by construction.
type Provider interface {
	// Source identifies the timebase variant ("nominal_rate", "ttl", ...).
	Source() string
	// Offset is the configured time offset in seconds.
	Offset() float64
	// Timestamps returns up to n reference instants in seconds. n <= 0 means
	// "all available"; the nominal variant requires n > 0 since it has no
	// intrinsic length.
	Timestamps(n int) ([]float64, error)
}

// Nominal is a fixed-rate clock: offset + i/rate for i in [0, n).
type Nominal struct {
	rate   float64
	offset float64
}

func NewNominal(rateHz, offset float64) (*Nominal, error) {
	if rateHz <= 0 {
		return nil, &model.SyncError{Source: config.SourceNominal, Reason: fmt.Sprintf("rate must be > 0, got %g", rateHz)}
	}
	return &Nominal{rate: rateHz, offset: offset}, nil
}

func (p *Nominal) Source() string  { return config.SourceNominal }
func (p *Nominal) Offset() float64 { return p.offset }

func (p *Nominal) Timestamps(n int) ([]float64, error) {
	if n <= 0 {
		return nil, &model.SyncError{Source: config.SourceNominal, Reason: "nominal timebase needs an explicit sample count"}
	}
	ts := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = p.offset + float64(i)/p.rate
	}
	return ts, nil
}

// TTL derives the timebase from a discovered pulse train. It structurally
// depends on a Manifest: construction fails without one or without the
// referenced channel.
type TTL struct {
	channel string
	offset  float64
	times   []float64
}

func NewTTL(m *model.Manifest, channel string, offset float64) (*TTL, error) {
	if m == nil {
		return nil, &model.SyncError{Source: config.SourceTTL, Reason: "no manifest supplied; ttl timebase requires discovered pulse files"}
	}
	entry := m.TTL(channel)
	if entry == nil {
		return nil, &model.SyncError{Source: config.SourceTTL, Reason: fmt.Sprintf("channel %q not present in manifest", channel)}
	}
	if entry.PulseTimes == nil {
		return nil, &model.SyncError{Source: config.SourceTTL, Reason: fmt.Sprintf("channel %q has no parseable pulse timestamps", channel)}
	}
	if len(entry.PulseTimes) != entry.PulseCount {
		return nil, &model.SyncError{Source: config.SourceTTL, Reason: fmt.Sprintf("channel %q parsed %d timestamps for %d pulses", channel, len(entry.PulseTimes), entry.PulseCount)}
	}

	times := make([]float64, len(entry.PulseTimes))
	for i, t := range entry.PulseTimes {
		times[i] = t + offset
		if i > 0 && times[i] < times[i-1] {
			return nil, &model.SyncError{Source: config.SourceTTL, Reason: fmt.Sprintf("channel %q pulse %d regresses in time (%.6f < %.6f)", channel, i, times[i], times[i-1])}
		}
	}

	return &TTL{channel: channel, offset: offset, times: times}, nil
}

func (p *TTL) Source() string  { return config.SourceTTL }
func (p *TTL) Offset() float64 { return p.offset }

// Channel is the reference TTL channel id this timebase was derived from.
func (p *TTL) Channel() string { return p.channel }

func (p *TTL) Timestamps(n int) ([]float64, error) {
	if n <= 0 || n > len(p.times) {
		n = len(p.times)
	}
	out := make([]float64, n)
	copy(out, p.times[:n])
	return out, nil
}

// FromConfig constructs the configured provider variant. The manifest may be
// nil only for the nominal variant.
func FromConfig(tc config.TimebaseConfig, m *model.Manifest) (Provider, error) {
	switch tc.Source {
	case config.SourceNominal:
		return NewNominal(tc.RateHz, tc.OffsetS)
	case config.SourceTTL:
		return NewTTL(m, tc.RefChannel, tc.OffsetS)
	case config.SourceExternal:
		// External clock streams arrive as pulse files on a dedicated channel,
		// so they ride the TTL variant.
		return NewTTL(m, tc.RefChannel, tc.OffsetS)
	default:
		return nil, &model.SyncError{Source: tc.Source, Reason: "unknown timebase source"}
	}
}
