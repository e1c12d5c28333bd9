package meter

import "math"

// MonotonicCounter adapts a cumulative counter sampled at arbitrary times
// (legacy counter-style gauges) into a rate. The source function is polled at
// each harvest; the emitted value is (current - previous) / (now -
// previousTimestamp), clamped to be non-negative. If more than two steps
// elapsed since the previous sample the interval is suppressed rather than
// amortized across the gap.
//
// The emitted measurement carries an explicit atlas.dstype=rate tag because
// the value is already normalized per second; the harvest pipeline must not
// divide it by the step again.
type MonotonicCounter struct {
	meterCore

	fn     func() float64
	stepMs int64
	prev   Float64
	prevTs Float64 // wall millis; NaN before first sample
}

func newMonotonicCounter(id *Id, clock Clock, ttl int64, stepMs int64, fn func() float64) *MonotonicCounter {
	m := &MonotonicCounter{fn: fn, stepMs: stepMs}
	m.init(id, clock, ttl)
	m.self = m
	m.prev.Set(math.NaN())
	m.prevTs.Set(math.NaN())

	return m
}

// Measure polls the source function. The first sample establishes a baseline
// and emits nothing. Polling counts as activity, so a registered monotonic
// counter does not expire while the harvest is running.
func (m *MonotonicCounter) Measure() []Measurement {
	cur := m.fn()
	now := m.clock.WallTime()

	prev := m.prev.GetAndSet(cur)
	prevTs := m.prevTs.GetAndSet(float64(now))

	m.lastUpdate.Store(now)

	if math.IsNaN(prev) || math.IsNaN(prevTs) || math.IsNaN(cur) {
		return nil
	}

	elapsedMs := now - int64(prevTs)
	if elapsedMs <= 0 {
		return nil
	}

	if m.stepMs > 0 && elapsedMs > 2*m.stepMs {
		return nil
	}

	rate := (cur - prev) / (float64(elapsedMs) / 1000.0)
	if math.IsNaN(rate) {
		return nil
	}

	if rate < 0 {
		rate = 0
	}

	return []Measurement{{
		ID:        m.id.WithStat(StatCount).WithTag(DstypeTagKey, DstypeRate),
		Timestamp: now,
		Value:     rate,
	}}
}
