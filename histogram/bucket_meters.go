package histogram

import (
	"sync"
	"time"

	"github.com/xraph/pulse/meter"
)

// The bucket meter wrappers shard a base meter by value range: each recorded
// value is routed to a child meter tagged with the bucket label the function
// assigns. Children are interned in the registry like any other meter and
// harvested independently; the wrapper itself holds no measurable state.

// BucketCounter counts events sharded by bucket label.
type BucketCounter struct {
	registry *meter.Registry
	id       *meter.Id
	f        BucketFunction

	mu       sync.RWMutex
	children map[string]*meter.Counter
}

// NewBucketCounter creates a bucket counter for the given identifier and
// bucket function.
func NewBucketCounter(registry *meter.Registry, id *meter.Id, f BucketFunction) *BucketCounter {
	return &BucketCounter{
		registry: registry,
		id:       id,
		f:        f,
		children: make(map[string]*meter.Counter),
	}
}

// Record increments the child counter for the bucket containing v.
func (b *BucketCounter) Record(v int64) {
	b.child(b.f(v)).Inc()
}

func (b *BucketCounter) child(label string) *meter.Counter {
	b.mu.RLock()
	c := b.children[label]
	b.mu.RUnlock()

	if c != nil {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.children[label]; c != nil {
		return c
	}

	c = b.registry.Counter(b.id.WithTag(meter.BucketTagKey, label))
	b.children[label] = c

	return c
}

// BucketTimer records durations sharded by bucket label.
type BucketTimer struct {
	registry *meter.Registry
	id       *meter.Id
	f        BucketFunction

	mu       sync.RWMutex
	children map[string]*meter.Timer
}

// NewBucketTimer creates a bucket timer for the given identifier and bucket
// function.
func NewBucketTimer(registry *meter.Registry, id *meter.Id, f BucketFunction) *BucketTimer {
	return &BucketTimer{
		registry: registry,
		id:       id,
		f:        f,
		children: make(map[string]*meter.Timer),
	}
}

// Record adds the duration to the child timer for its bucket.
func (b *BucketTimer) Record(d time.Duration) {
	b.child(b.f(d.Nanoseconds())).Record(d)
}

func (b *BucketTimer) child(label string) *meter.Timer {
	b.mu.RLock()
	t := b.children[label]
	b.mu.RUnlock()

	if t != nil {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if t := b.children[label]; t != nil {
		return t
	}

	t = b.registry.Timer(b.id.WithTag(meter.BucketTagKey, label))
	b.children[label] = t

	return t
}

// BucketDistributionSummary records amounts sharded by bucket label.
type BucketDistributionSummary struct {
	registry *meter.Registry
	id       *meter.Id
	f        BucketFunction

	mu       sync.RWMutex
	children map[string]*meter.DistributionSummary
}

// NewBucketDistributionSummary creates a bucket distribution summary for the
// given identifier and bucket function.
func NewBucketDistributionSummary(registry *meter.Registry, id *meter.Id, f BucketFunction) *BucketDistributionSummary {
	return &BucketDistributionSummary{
		registry: registry,
		id:       id,
		f:        f,
		children: make(map[string]*meter.DistributionSummary),
	}
}

// Record adds the amount to the child summary for its bucket.
func (b *BucketDistributionSummary) Record(amount int64) {
	b.child(b.f(amount)).Record(float64(amount))
}

func (b *BucketDistributionSummary) child(label string) *meter.DistributionSummary {
	b.mu.RLock()
	s := b.children[label]
	b.mu.RUnlock()

	if s != nil {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.children[label]; s != nil {
		return s
	}

	s = b.registry.DistributionSummary(b.id.WithTag(meter.BucketTagKey, label))
	b.children[label] = s

	return s
}
