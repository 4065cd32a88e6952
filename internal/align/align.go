// Package align maps derived-data sample timestamps onto a reference timebase
// and accounts for the jitter of that mapping.
package align

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"sessionsync/internal/model"
)

// Options configure one alignment call.
type Options struct {
	Mapping       model.Mapping
	JitterBudgetS float64
	EnforceBudget bool
	Stream        string // stream name, used in diagnostics only
}

// Align maps each sample timestamp onto the reference sequence.
//
// Nearest mapping: a sample maps to the closest reference instant, ties broken
// toward the lower index; jitter is the absolute distance to that instant.
//
// Linear mapping: a sample maps to the nearest endpoint of its bracketing
// reference interval, but jitter is measured against the linearly interpolated
// timeline: a sample strictly between two reference instants lies on the
// interpolant and accrues zero jitter, while samples outside the reference
// span accrue distance to the nearest edge. Linear jitter therefore never
// exceeds nearest jitter, sample by sample and in the max/p95 statistics.
//
// The call is pure and deterministic: identical inputs yield identical
// indices and statistics.
func Align(samples, reference []float64, opts Options) (*model.AlignmentResult, error) {
	if len(reference) == 0 {
		return nil, errors.New("align: empty reference timebase")
	}
	for i := 1; i < len(reference); i++ {
		if reference[i] < reference[i-1] {
			return nil, fmt.Errorf("align: reference timebase decreases at index %d", i)
		}
	}

	mapping := opts.Mapping
	if mapping == "" {
		mapping = model.MappingNearest
	}

	indices := make([]int, len(samples))
	jitter := make([]float64, len(samples))

	for i, t := range samples {
		idx, j := mapSample(t, reference, mapping)
		indices[i] = idx
		jitter[i] = j
	}

	maxJ := 0.0
	for _, j := range jitter {
		if j > maxJ {
			maxJ = j
		}
	}

	res := &model.AlignmentResult{
		Indices:    indices,
		Mapping:    mapping,
		MaxJitter:  maxJ,
		P95Jitter:  percentile95(jitter),
		SampleSize: len(samples),
	}

	if opts.EnforceBudget && maxJ > opts.JitterBudgetS {
		return nil, &model.JitterBudgetError{
			Stream:   opts.Stream,
			BudgetS:  opts.JitterBudgetS,
			MaxS:     maxJ,
			Mapping:  mapping,
			NSamples: len(samples),
		}
	}

	return res, nil
}

// mapSample maps one sample timestamp to a reference index plus its jitter.
func mapSample(t float64, ref []float64, mapping model.Mapping) (int, float64) {
	n := len(ref)

	// First reference instant >= t.
	hi := sort.SearchFloat64s(ref, t)

	switch {
	case hi == 0:
		// At or before the first instant.
		return 0, ref[0] - t
	case hi == n:
		// After the last instant: both mappings accrue distance to the edge.
		return n - 1, t - ref[n-1]
	}

	lo := hi - 1
	dLo := t - ref[lo]
	dHi := ref[hi] - t

	// Nearest endpoint, ties toward the lower index.
	idx := lo
	if dHi < dLo {
		idx = hi
	}

	if mapping == model.MappingLinear {
		// t lies on the segment [ref[lo], ref[hi]]: zero residual against the
		// interpolated timeline.
		return idx, 0
	}

	return idx, math.Min(dLo, dHi)
}

// percentile95 returns the 95th percentile of absolute jitter using the
// deterministic ceil rule: values sorted ascending, index ceil(0.95*n)-1.
// No interpolation, so budget boundaries are exactly reproducible.
func percentile95(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// BuildStats assembles the persisted provenance record for one alignment.
func BuildStats(stream, source string, offset float64, res *model.AlignmentResult) model.AlignmentStats {
	return model.AlignmentStats{
		Stream:         stream,
		TimebaseSource: source,
		Mapping:        res.Mapping,
		OffsetSec:      offset,
		MaxJitterSec:   res.MaxJitter,
		P95JitterSec:   res.P95Jitter,
		AlignedSamples: res.SampleSize,
		GeneratedAt:    time.Now().UTC(),
	}
}
