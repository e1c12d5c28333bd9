package meter

import (
	"sync/atomic"
)

// Measurement is a single (identifier, timestamp, value) tuple emitted by a
// meter at a step boundary. The timestamp is epoch milliseconds: meters stamp
// the wall time of the harvest, and the publication pipeline replaces it with
// the step boundary the value belongs to.
type Measurement struct {
	ID        *Id
	Timestamp int64
	Value     float64
}

// Meter is the capability set shared by all meter variants.
type Meter interface {
	// ID returns the identifier the meter was interned under.
	ID() *Id

	// Measure harvests accumulated state into zero or more measurements and
	// resets the delta accumulators. A meter with no activity since the last
	// harvest returns nothing.
	Measure() []Measurement

	// HasExpired reports whether the meter has seen no update within the
	// registry's TTL.
	HasExpired() bool
}

// meterCore carries the state shared by every variant: identity, clock, the
// last-update timestamp driving expiration, and the hook that re-inserts a
// removed meter on its next update (resurrection).
type meterCore struct {
	id         *Id
	clock      Clock
	ttl        atomic.Int64 // milliseconds
	lastUpdate atomic.Int64

	// Resurrection plumbing. registry is nil for detached (no-op fallback)
	// meters; removed flips true when the expiration sweep drops the meter.
	registry  *Registry
	internKey string
	self      Meter
	removed   atomic.Bool
}

// init sets up the shared state in place; meterCore contains atomics and
// must not be copied after construction.
func (c *meterCore) init(id *Id, clock Clock, ttl int64) {
	c.id = id
	c.clock = clock
	c.ttl.Store(ttl)
	c.lastUpdate.Store(clock.WallTime())
}

func (c *meterCore) ID() *Id {
	return c.id
}

func (c *meterCore) HasExpired() bool {
	return c.clock.WallTime()-c.lastUpdate.Load() > c.ttl.Load()
}

// touch records update activity. The hot path cost is one atomic store plus
// one atomic load; the compare-and-swap and re-insert only run after the
// sweep has removed the meter.
func (c *meterCore) touch() {
	c.lastUpdate.Store(c.clock.WallTime())

	if c.removed.Load() && c.removed.CompareAndSwap(true, false) {
		if c.registry != nil {
			c.registry.reinsert(c.internKey, c.self)
		}
	}
}

func (c *meterCore) core() *meterCore {
	return c
}

// corer gives the registry access to shared meter state without widening the
// public Meter interface.
type corer interface {
	core() *meterCore
}
