package meter

import (
	"time"
)

// Timer measures the distribution of event durations. Durations are
// normalized to seconds at record time so the sum of squares survives long
// runs without overflowing. Negative durations are ignored.
type Timer struct {
	meterCore

	count     Float64
	totalTime Float64 // seconds
	totalSq   Float64 // seconds squared
	max       Float64 // seconds
}

func newTimer(id *Id, clock Clock, ttl int64) *Timer {
	t := &Timer{}
	t.init(id, clock, ttl)
	t.self = t

	return t
}

// Record adds a duration sample.
func (t *Timer) Record(d time.Duration) {
	if d < 0 {
		return
	}

	sec := d.Seconds()

	t.count.AddAndGet(1)
	t.totalTime.AddAndGet(sec)
	t.totalSq.AddAndGet(sec * sec)
	t.max.Max(sec)
	t.touch()
}

// RecordFunc measures monotonic elapsed time around f, recording on every
// exit path including panics.
func (t *Timer) RecordFunc(f func()) {
	start := t.clock.MonotonicTime()

	defer func() {
		t.Record(time.Duration(t.clock.MonotonicTime() - start))
	}()

	f()
}

// RecordCallable measures monotonic elapsed time around f, recording on every
// exit path, and returns f's error.
func (t *Timer) RecordCallable(f func() error) error {
	start := t.clock.MonotonicTime()

	defer func() {
		t.Record(time.Duration(t.clock.MonotonicTime() - start))
	}()

	return f()
}

// Start returns a stop function that records the elapsed time when called.
// Usage: defer timer.Start()()
func (t *Timer) Start() func() {
	start := t.clock.MonotonicTime()

	return func() {
		t.Record(time.Duration(t.clock.MonotonicTime() - start))
	}
}

// Count returns the number of samples since the last harvest.
func (t *Timer) Count() float64 {
	return t.count.Get()
}

// TotalTime returns the accumulated duration in seconds since the last
// harvest.
func (t *Timer) TotalTime() float64 {
	return t.totalTime.Get()
}

// Measure drains the four accumulators into count, totalTime,
// totalOfSquares, and max measurements. The four fields are each atomic but
// not snapshot-atomic; an update racing the harvest is attributed to the next
// step.
func (t *Timer) Measure() []Measurement {
	n := t.count.GetAndSet(0)
	total := t.totalTime.GetAndSet(0)
	totalSq := t.totalSq.GetAndSet(0)
	maxVal := t.max.GetAndSet(0)

	if n <= 0 {
		return nil
	}

	ts := t.clock.WallTime()

	return []Measurement{
		{ID: t.id.WithStat(StatCount), Timestamp: ts, Value: n},
		{ID: t.id.WithStat(StatTotalTime), Timestamp: ts, Value: total},
		{ID: t.id.WithStat(StatTotalOfSquares), Timestamp: ts, Value: totalSq},
		{ID: t.id.WithStat(StatMax), Timestamp: ts, Value: maxVal},
	}
}
