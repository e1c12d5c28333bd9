package histogram

import (
	"math"
	"sync/atomic"

	"github.com/xraph/pulse/meter"
)

// SummaryOption configures a PercentileDistributionSummary.
type SummaryOption func(*PercentileDistributionSummary)

// WithSummaryRange clamps recorded amounts to [min, max] for bucket
// selection.
func WithSummaryRange(min, max int64) SummaryOption {
	return func(s *PercentileDistributionSummary) {
		s.min = min
		s.max = max
	}
}

// PercentileDistributionSummary wraps a DistributionSummary with per-bucket
// counters, tagged percentile=D<HHHH>, for backend percentile
// reconstruction.
type PercentileDistributionSummary struct {
	registry *meter.Registry
	id       *meter.Id
	summary  *meter.DistributionSummary
	min      int64
	max      int64
	counters []atomic.Pointer[meter.Counter]
}

// NewPercentileDistributionSummary creates a percentile distribution summary
// for the given identifier.
func NewPercentileDistributionSummary(registry *meter.Registry, id *meter.Id, opts ...SummaryOption) *PercentileDistributionSummary {
	s := &PercentileDistributionSummary{
		registry: registry,
		id:       id,
		summary:  registry.DistributionSummary(id),
		min:      0,
		max:      math.MaxInt64,
		counters: make([]atomic.Pointer[meter.Counter], Length()),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the base identifier.
func (s *PercentileDistributionSummary) ID() *meter.Id {
	return s.id
}

// Record adds an amount sample to the base summary and to the bucket counter
// for the clamped value.
func (s *PercentileDistributionSummary) Record(amount int64) {
	if amount < 0 {
		return
	}

	s.summary.Record(float64(amount))
	s.counterFor(IndexOf(clamp(amount, s.min, s.max))).Inc()
}

// Count returns the sample count accumulated on the base summary since the
// last harvest.
func (s *PercentileDistributionSummary) Count() float64 {
	return s.summary.Count()
}

// Percentile estimates the p-th percentile from the counts accumulated since
// the last harvest.
func (s *PercentileDistributionSummary) Percentile(p float64) float64 {
	counts := make([]int64, Length())

	for i := range s.counters {
		if c := s.counters[i].Load(); c != nil {
			counts[i] = int64(c.Count())
		}
	}

	return Percentile(counts, p)
}

func (s *PercentileDistributionSummary) counterFor(i int) *meter.Counter {
	if c := s.counters[i].Load(); c != nil {
		return c
	}

	c := s.registry.Counter(s.id.WithTags(map[string]string{
		meter.StatisticTagKey:  meter.StatPercentile,
		meter.PercentileTagKey: SummaryTag(i),
	}))
	s.counters[i].Store(c)

	return c
}
