package meter

import "math"

// Counter measures a monotonically increasing delta since the last harvest.
// Updates are lock-free; the accumulator is drained atomically at harvest so
// no increment is counted twice or lost.
type Counter struct {
	meterCore

	count Float64
}

func newCounter(id *Id, clock Clock, ttl int64) *Counter {
	c := &Counter{}
	c.init(id, clock, ttl)
	c.self = c

	return c
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add increments the counter by delta. NaN and negative deltas are ignored
// and do not count as activity.
func (c *Counter) Add(delta float64) {
	if math.IsNaN(delta) || delta < 0 {
		return
	}

	c.count.AddAndGet(delta)
	c.touch()
}

// Count returns the delta accumulated since the last harvest.
func (c *Counter) Count() float64 {
	return c.count.Get()
}

// Measure drains the accumulator. A zero delta yields no measurement.
func (c *Counter) Measure() []Measurement {
	delta := c.count.GetAndSet(0)
	if delta <= 0 {
		return nil
	}

	return []Measurement{{
		ID:        c.id.WithStat(StatCount),
		Timestamp: c.clock.WallTime(),
		Value:     delta,
	}}
}
