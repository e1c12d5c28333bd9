package meter

import "math"

// DistributionSummary measures the distribution of unitless amounts (request
// sizes, batch counts). Same accumulation contract as Timer with totalAmount
// in place of totalTime. Negative and NaN amounts are ignored.
type DistributionSummary struct {
	meterCore

	count       Float64
	totalAmount Float64
	totalSq     Float64
	max         Float64
}

func newDistributionSummary(id *Id, clock Clock, ttl int64) *DistributionSummary {
	d := &DistributionSummary{}
	d.init(id, clock, ttl)
	d.self = d

	return d
}

// Record adds an amount sample. Zero is a valid sample: it increments the
// count while leaving the totals unchanged.
func (d *DistributionSummary) Record(amount float64) {
	if math.IsNaN(amount) || amount < 0 {
		return
	}

	d.count.AddAndGet(1)
	d.totalAmount.AddAndGet(amount)
	d.totalSq.AddAndGet(amount * amount)
	d.max.Max(amount)
	d.touch()
}

// Count returns the number of samples since the last harvest.
func (d *DistributionSummary) Count() float64 {
	return d.count.Get()
}

// TotalAmount returns the accumulated amount since the last harvest.
func (d *DistributionSummary) TotalAmount() float64 {
	return d.totalAmount.Get()
}

func (d *DistributionSummary) Measure() []Measurement {
	n := d.count.GetAndSet(0)
	total := d.totalAmount.GetAndSet(0)
	totalSq := d.totalSq.GetAndSet(0)
	maxVal := d.max.GetAndSet(0)

	if n <= 0 {
		return nil
	}

	ts := d.clock.WallTime()

	return []Measurement{
		{ID: d.id.WithStat(StatCount), Timestamp: ts, Value: n},
		{ID: d.id.WithStat(StatTotalAmount), Timestamp: ts, Value: total},
		{ID: d.id.WithStat(StatTotalOfSquares), Timestamp: ts, Value: totalSq},
		{ID: d.id.WithStat(StatMax), Timestamp: ts, Value: maxVal},
	}
}
