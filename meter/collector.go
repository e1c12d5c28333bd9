package meter

// Collector is a synthetic measurement provider invoked once per harvest.
// Platform introspection (memory pools, GC counters, file descriptors) plugs
// in through this interface: providers call into whichever platform API is
// available and emit the same measurement shape as regular meters.
//
// Collect runs inside the harvest loop and must be side-effect-free and
// fast. A panicking provider is recovered, logged, and counted; it does not
// abort the harvest.
type Collector interface {
	// Name identifies the provider for registration and logs.
	Name() string

	// Collect returns the provider's measurements for the current step.
	Collect() []Measurement
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc struct {
	CollectorName string
	Fn            func() []Measurement
}

func (c CollectorFunc) Name() string {
	return c.CollectorName
}

func (c CollectorFunc) Collect() []Measurement {
	if c.Fn == nil {
		return nil
	}

	return c.Fn()
}
