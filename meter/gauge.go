package meter

import "math"

// Gauge samples a last-writer-wins value. The value resets to NaN at harvest;
// NaN suppresses emission, so a step with no Set produces no measurement.
type Gauge struct {
	meterCore

	value Float64
}

func newGauge(id *Id, clock Clock, ttl int64) *Gauge {
	g := &Gauge{}
	g.init(id, clock, ttl)
	g.self = g
	g.value.Set(math.NaN())

	return g
}

// Set records v as the current sample.
func (g *Gauge) Set(v float64) {
	g.value.Set(v)
	g.touch()
}

// Value returns the last sample, or NaN if none arrived since the last
// harvest.
func (g *Gauge) Value() float64 {
	return g.value.Get()
}

func (g *Gauge) Measure() []Measurement {
	v := g.value.GetAndSet(math.NaN())
	if math.IsNaN(v) {
		return nil
	}

	return []Measurement{{
		ID:        g.id.WithStat(StatGauge),
		Timestamp: g.clock.WallTime(),
		Value:     v,
	}}
}

// MaxGauge accumulates the maximum value seen since the last harvest. Only
// strictly positive maxima are emitted.
type MaxGauge struct {
	meterCore

	value Float64
}

func newMaxGauge(id *Id, clock Clock, ttl int64) *MaxGauge {
	g := &MaxGauge{}
	g.init(id, clock, ttl)
	g.self = g
	g.value.Set(math.NaN())

	return g
}

// Set updates the accumulated maximum with v.
func (g *MaxGauge) Set(v float64) {
	g.value.Max(v)
	g.touch()
}

// Value returns the accumulated maximum, or NaN if no sample arrived since
// the last harvest.
func (g *MaxGauge) Value() float64 {
	return g.value.Get()
}

func (g *MaxGauge) Measure() []Measurement {
	v := g.value.GetAndSet(math.NaN())
	if math.IsNaN(v) || v <= 0 {
		return nil
	}

	return []Measurement{{
		ID:        g.id.WithStat(StatMax),
		Timestamp: g.clock.WallTime(),
		Value:     v,
	}}
}
