package model

import "time"

// Mapping selects how derived sample timestamps land on the reference timebase.
type Mapping string

const (
	MappingNearest Mapping = "nearest"
	MappingLinear  Mapping = "linear"
)

// AlignmentResult maps an ordered set of sample timestamps onto a reference
// timestamp sequence. Indices[i] is the reference index sample i landed on.
type AlignmentResult struct {
	Indices    []int   `json:"indices"`
	Mapping    Mapping `json:"mapping"`
	MaxJitter  float64 `json:"max_jitter_s"` // max |sample - reference| in seconds
	P95Jitter  float64 `json:"p95_jitter_s"`
	SampleSize int     `json:"aligned_samples"`
}

// AlignmentStats is the persisted provenance record of one alignment call.
type AlignmentStats struct {
	Stream         string    `json:"stream"`
	TimebaseSource string    `json:"timebase_source"`
	Mapping        Mapping   `json:"mapping"`
	OffsetSec      float64   `json:"offset_s"`
	MaxJitterSec   float64   `json:"max_jitter_s"`
	P95JitterSec   float64   `json:"p95_jitter_s"`
	AlignedSamples int       `json:"aligned_samples"`
	GeneratedAt    time.Time `json:"generated_at"`
}
