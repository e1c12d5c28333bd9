// Package pulse is a metrics instrumentation library: application code
// creates lightweight meter handles identified by name and dimensional tags,
// updates them lock-free at high frequency, and a background reporter
// harvests the accumulated state on wall-clock step boundaries and publishes
// it to an upstream aggregation service.
//
// Prefer constructing a meter.Registry explicitly at program entry and
// passing it down. The package-level accessors exist as a bridge for
// libraries that cannot take a registry parameter; the default registry slot
// is write-once.
package pulse

import (
	"sync/atomic"
	"time"

	"github.com/xraph/pulse/errs"
	"github.com/xraph/pulse/meter"
)

var defaultRegistry atomic.Pointer[meter.Registry]

// Default returns the process-wide registry, constructing one lazily on
// first use.
func Default() *meter.Registry {
	if r := defaultRegistry.Load(); r != nil {
		return r
	}

	r := meter.New()
	if defaultRegistry.CompareAndSwap(nil, r) {
		return r
	}

	return defaultRegistry.Load()
}

// SetDefault installs the process-wide registry. The slot is write-once:
// installing after the default has been set or used fails.
func SetDefault(r *meter.Registry) error {
	if !defaultRegistry.CompareAndSwap(nil, r) {
		return errs.New(errs.CodeAlreadyExists, "default registry already set")
	}

	return nil
}

// Counter returns a counter from the default registry.
func Counter(name string, tags map[string]string) *meter.Counter {
	return Default().Counter(meter.NewId(name, tags))
}

// Gauge returns a gauge from the default registry.
func Gauge(name string, tags map[string]string) *meter.Gauge {
	return Default().Gauge(meter.NewId(name, tags))
}

// MaxGauge returns a max-gauge from the default registry.
func MaxGauge(name string, tags map[string]string) *meter.MaxGauge {
	return Default().MaxGauge(meter.NewId(name, tags))
}

// Timer returns a timer from the default registry.
func Timer(name string, tags map[string]string) *meter.Timer {
	return Default().Timer(meter.NewId(name, tags))
}

// DistributionSummary returns a distribution summary from the default
// registry.
func DistributionSummary(name string, tags map[string]string) *meter.DistributionSummary {
	return Default().DistributionSummary(meter.NewId(name, tags))
}

// RecordElapsed times f against the default registry's clock and records it
// on the named timer.
func RecordElapsed(name string, tags map[string]string, f func()) {
	Timer(name, tags).RecordFunc(f)
}

// Since returns the time elapsed on the default registry's monotonic clock
// since the given start, for callers mixing manual timing with meter updates.
func Since(startMonotonicNanos int64) time.Duration {
	return time.Duration(Default().Clock().MonotonicTime() - startMonotonicNanos)
}
