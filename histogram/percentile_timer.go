package histogram

import (
	"sync/atomic"
	"time"

	"github.com/xraph/pulse/meter"
)

// Default clamp range for percentile timers. Restricting the range caps the
// worst-case number of per-bucket counters a single timer can create.
const (
	DefaultTimerRangeMin = 10 * time.Millisecond
	DefaultTimerRangeMax = 60 * time.Second
)

// TimerOption configures a PercentileTimer.
type TimerOption func(*PercentileTimer)

// WithTimerRange clamps recorded durations to [min, max] for bucket
// selection. The base timer still sees the raw duration.
func WithTimerRange(min, max time.Duration) TimerOption {
	return func(t *PercentileTimer) {
		t.min = min.Nanoseconds()
		t.max = max.Nanoseconds()
	}
}

// PercentileTimer wraps a Timer with per-bucket counters that allow the
// backend to reconstruct percentiles. Bucket counters are created lazily on
// the first sample that lands in them; each is interned in the registry
// under the base identifier plus statistic=percentile and a percentile tag
// of the form T<HHHH> carrying the bucket index.
type PercentileTimer struct {
	registry *meter.Registry
	id       *meter.Id
	timer    *meter.Timer
	min      int64
	max      int64
	counters []atomic.Pointer[meter.Counter]
}

// NewPercentileTimer creates a percentile timer for the given identifier.
func NewPercentileTimer(registry *meter.Registry, id *meter.Id, opts ...TimerOption) *PercentileTimer {
	t := &PercentileTimer{
		registry: registry,
		id:       id,
		timer:    registry.Timer(id),
		min:      DefaultTimerRangeMin.Nanoseconds(),
		max:      DefaultTimerRangeMax.Nanoseconds(),
		counters: make([]atomic.Pointer[meter.Counter], Length()),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// ID returns the base identifier.
func (t *PercentileTimer) ID() *meter.Id {
	return t.id
}

// Record adds a duration sample to the base timer and to the bucket counter
// for the clamped value.
func (t *PercentileTimer) Record(d time.Duration) {
	if d < 0 {
		return
	}

	t.timer.Record(d)
	t.counterFor(IndexOf(clamp(d.Nanoseconds(), t.min, t.max))).Inc()
}

// RecordFunc measures monotonic elapsed time around f, recording on every
// exit path.
func (t *PercentileTimer) RecordFunc(f func()) {
	clock := t.registry.Clock()
	start := clock.MonotonicTime()

	defer func() {
		t.Record(time.Duration(clock.MonotonicTime() - start))
	}()

	f()
}

// Count returns the sample count accumulated on the base timer since the
// last harvest.
func (t *PercentileTimer) Count() float64 {
	return t.timer.Count()
}

// Percentile estimates the p-th percentile in seconds from the counts
// accumulated since the last harvest.
func (t *PercentileTimer) Percentile(p float64) float64 {
	counts := make([]int64, Length())

	for i := range t.counters {
		if c := t.counters[i].Load(); c != nil {
			counts[i] = int64(c.Count())
		}
	}

	return Percentile(counts, p) / 1e9
}

func (t *PercentileTimer) counterFor(i int) *meter.Counter {
	if c := t.counters[i].Load(); c != nil {
		return c
	}

	// Racing creators resolve to the same interned instance, so a plain
	// store is safe.
	c := t.registry.Counter(t.id.WithTags(map[string]string{
		meter.StatisticTagKey:  meter.StatPercentile,
		meter.PercentileTagKey: TimerTag(i),
	}))
	t.counters[i].Store(c)

	return c
}

func clamp(v, min, max int64) int64 {
	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}
