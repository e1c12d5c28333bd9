// Package histogram provides percentile and bucket decorators over the base
// meter variants: a fixed logarithmic bucket table for percentile estimation
// from sparse per-bucket counters, and label-based bucketing for age and
// latency distributions.
package histogram

import (
	"fmt"
	"math"
	"sort"
)

// The bucket table subdivides each power-of-four range of the positive int64
// space into steps of one third of the range base. The layout is fixed so
// that counters published from different processes line up on identical
// boundaries, and sparse: only buckets that received samples ever become
// counters.
var bucketValues []int64

// Precomputed width-4 uppercase hex tags, one per bucket, prefixed T for
// timers and D for distribution summaries. Precomputing keeps the record hot
// path free of string formatting.
var (
	timerTags   []string
	summaryTags []string
)

func init() {
	bucketValues = append(bucketValues, 1, 2, 3)

	exp := uint(2)
	for exp < 64 {
		current := int64(1) << exp
		delta := current / 3
		next := (current << 2) - delta

		for current < next {
			bucketValues = append(bucketValues, current)
			current += delta
		}

		exp += 2
	}

	bucketValues = append(bucketValues, math.MaxInt64)

	timerTags = make([]string, len(bucketValues))
	summaryTags = make([]string, len(bucketValues))

	for i := range bucketValues {
		timerTags[i] = fmt.Sprintf("T%04X", i)
		summaryTags[i] = fmt.Sprintf("D%04X", i)
	}
}

// Length returns the number of buckets in the table.
func Length() int {
	return len(bucketValues)
}

// UpperBound returns the inclusive upper boundary of bucket i.
func UpperBound(i int) int64 {
	return bucketValues[i]
}

// IndexOf returns the bucket containing v. Values less than or equal to zero
// map to bucket 0; values beyond the second-to-last boundary land in the
// overflow bucket.
func IndexOf(v int64) int {
	if v <= 0 {
		return 0
	}

	return sort.Search(len(bucketValues), func(i int) bool {
		return bucketValues[i] >= v
	})
}

// TimerTag returns the percentile tag value for bucket i on a timer.
func TimerTag(i int) string {
	return timerTags[i]
}

// SummaryTag returns the percentile tag value for bucket i on a distribution
// summary.
func SummaryTag(i int) string {
	return summaryTags[i]
}

// Percentile estimates the p-th percentile (0 <= p <= 100) from per-bucket
// counts, interpolating linearly within the target bucket. counts must have
// Length() entries. Returns NaN when there are no samples.
func Percentile(counts []int64, p float64) float64 {
	var total int64
	for _, c := range counts {
		total += c
	}

	if total == 0 {
		return math.NaN()
	}

	pos := p / 100.0 * float64(total)

	var cum int64

	for i, c := range counts {
		if c == 0 {
			continue
		}

		prev := cum
		cum += c

		if float64(cum) < pos {
			continue
		}

		var lower float64
		if i > 0 {
			lower = float64(bucketValues[i-1])
		}

		if i == len(bucketValues)-1 {
			// Overflow bucket: the upper boundary is unusable for
			// interpolation, report the lower one.
			return lower
		}

		upper := float64(bucketValues[i])
		frac := (pos - float64(prev)) / float64(c)

		return lower + frac*(upper-lower)
	}

	// p at or beyond the last sample.
	for i := len(counts) - 1; i >= 0; i-- {
		if counts[i] > 0 {
			if i == len(bucketValues)-1 {
				return float64(bucketValues[i-1])
			}

			return float64(bucketValues[i])
		}
	}

	return math.NaN()
}

// Percentiles fills results with the estimates for each requested
// percentile. pcts and results must have the same length.
func Percentiles(counts []int64, pcts []float64, results []float64) {
	for i, p := range pcts {
		results[i] = Percentile(counts, p)
	}
}
