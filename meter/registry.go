package meter

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/xraph/pulse/errs"
	"github.com/xraph/pulse/log"
)

// DefaultMeterTTL is the expiration window for meters with no updates.
const DefaultMeterTTL = 15 * time.Minute

// DefaultStep is the publication period assumed until a publisher overrides
// it.
const DefaultStep = 5 * time.Second

// Meter kind discriminators for the interning key. Distinct kinds on the
// same base identifier resolve to distinct meters.
const (
	kindCounter   = "counter"
	kindGauge     = "gauge"
	kindMaxGauge  = "max-gauge"
	kindTimer     = "timer"
	kindSummary   = "dist-summary"
	kindMonotonic = "monotonic"
)

// Options configure a Registry.
type Options struct {
	Clock    Clock
	Logger   log.Logger
	MeterTTL time.Duration
	Step     time.Duration
}

// Option is a functional option for Registry construction.
type Option func(*Options)

// WithClock sets the clock. Tests inject a ManualClock here.
func WithClock(c Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMeterTTL sets the expiration window.
func WithMeterTTL(ttl time.Duration) Option {
	return func(o *Options) { o.MeterTTL = ttl }
}

// WithStep sets the expected publication period, used by polled meters for
// gap detection. A publisher attached to the registry overrides it from its
// own configuration.
func WithStep(step time.Duration) Option {
	return func(o *Options) { o.Step = step }
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry interns meters by (kind, identifier), iterates them for harvest,
// and expires stale ones. The update hot path takes the registry lock only
// to re-insert a meter the expiration sweep removed; otherwise only creation,
// iteration, and the sweep do.
type Registry struct {
	mu         sync.RWMutex
	meters     map[string]Meter
	collectors map[string]Collector

	clock      Clock
	log        log.Logger
	ttl        time.Duration
	stepMillis int64
	instanceID string
}

// New creates a registry.
func New(opts ...Option) *Registry {
	o := Options{
		Clock:    NewSystemClock(),
		Logger:   log.NewNoopLogger(),
		MeterTTL: DefaultMeterTTL,
		Step:     DefaultStep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Registry{
		meters:     make(map[string]Meter),
		collectors: make(map[string]Collector),
		clock:      o.Clock,
		log:        o.Logger.Named("registry"),
		ttl:        o.MeterTTL,
		stepMillis: o.Step.Milliseconds(),
		instanceID: xid.New().String(),
	}
}

// Clock returns the registry's clock.
func (r *Registry) Clock() Clock {
	return r.clock
}

// MeterTTL returns the expiration window.
func (r *Registry) MeterTTL() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ttl
}

// InstanceID returns the process-unique registry id used in logs and
// optionally as a common tag.
func (r *Registry) InstanceID() string {
	return r.instanceID
}

// SetStep aligns polled-meter gap detection with the publisher's step. It is
// called once by the publisher at start; meters created afterwards pick up
// the new value, existing polled meters keep the old one.
func (r *Registry) SetStep(step time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stepMillis = step.Milliseconds()
}

// SetMeterTTL changes the expiration window for the registry and every live
// meter. Called once by the publisher at start so the configured TTL wins
// over the registry default.
func (r *Registry) SetMeterTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ttl = ttl

	for _, m := range r.meters {
		if c, ok := m.(corer); ok {
			c.core().ttl.Store(ttl.Milliseconds())
		}
	}
}

func (r *Registry) step() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stepMillis
}

func (r *Registry) ttlMillis() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ttl.Milliseconds()
}

// NewID constructs an identifier.
func (r *Registry) NewID(name string, tags map[string]string) *Id {
	return NewId(name, tags)
}

// =============================================================================
// INTERNING
// =============================================================================

// Counter returns the counter for the given identifier, creating it on first
// use. Structurally equal identifiers return the same instance.
func (r *Registry) Counter(id *Id) *Counter {
	if !r.checkID(id) {
		return newCounter(sentinelID(id), r.clock, r.ttlMillis())
	}

	m := r.getOrCreate(kindCounter, id, func() Meter {
		return newCounter(id, r.clock, r.ttl.Milliseconds())
	})

	return m.(*Counter)
}

// CounterWithTags is a convenience for Counter(NewId(name, tags)).
func (r *Registry) CounterWithTags(name string, tags map[string]string) *Counter {
	return r.Counter(NewId(name, tags))
}

// Gauge returns the gauge for the given identifier.
func (r *Registry) Gauge(id *Id) *Gauge {
	if !r.checkID(id) {
		return newGauge(sentinelID(id), r.clock, r.ttlMillis())
	}

	m := r.getOrCreate(kindGauge, id, func() Meter {
		return newGauge(id, r.clock, r.ttl.Milliseconds())
	})

	return m.(*Gauge)
}

// MaxGauge returns the max-gauge for the given identifier.
func (r *Registry) MaxGauge(id *Id) *MaxGauge {
	if !r.checkID(id) {
		return newMaxGauge(sentinelID(id), r.clock, r.ttlMillis())
	}

	m := r.getOrCreate(kindMaxGauge, id, func() Meter {
		return newMaxGauge(id, r.clock, r.ttl.Milliseconds())
	})

	return m.(*MaxGauge)
}

// Timer returns the timer for the given identifier.
func (r *Registry) Timer(id *Id) *Timer {
	if !r.checkID(id) {
		return newTimer(sentinelID(id), r.clock, r.ttlMillis())
	}

	m := r.getOrCreate(kindTimer, id, func() Meter {
		return newTimer(id, r.clock, r.ttl.Milliseconds())
	})

	return m.(*Timer)
}

// DistributionSummary returns the distribution summary for the given
// identifier.
func (r *Registry) DistributionSummary(id *Id) *DistributionSummary {
	if !r.checkID(id) {
		return newDistributionSummary(sentinelID(id), r.clock, r.ttlMillis())
	}

	m := r.getOrCreate(kindSummary, id, func() Meter {
		return newDistributionSummary(id, r.clock, r.ttl.Milliseconds())
	})

	return m.(*DistributionSummary)
}

// MonotonicCounter registers a cumulative value function polled at each
// harvest. The function must be side-effect-free.
func (r *Registry) MonotonicCounter(id *Id, fn func() float64) *MonotonicCounter {
	if !r.checkID(id) {
		return newMonotonicCounter(sentinelID(id), r.clock, r.ttlMillis(), r.step(), fn)
	}

	// The create callback runs with the registry lock held; read the step
	// field directly rather than through the locking accessor.
	m := r.getOrCreate(kindMonotonic, id, func() Meter {
		return newMonotonicCounter(id, r.clock, r.ttl.Milliseconds(), r.stepMillis, fn)
	})

	return m.(*MonotonicCounter)
}

// checkID validates an identifier on registration. Invalid identifiers are
// logged with a structured error and the caller receives a detached meter
// that accepts updates but is never harvested, so user code never branches
// on an error.
func (r *Registry) checkID(id *Id) bool {
	if id == nil || id.Name() == "" {
		err := errs.New(errs.CodeInvalidID, "meter identifier must have a non-empty name")
		r.log.Warn("rejected meter registration", log.Err(err))

		return false
	}

	return true
}

func sentinelID(id *Id) *Id {
	if id == nil {
		return NewId("invalid", nil)
	}

	return NewId("invalid", map[string]string{"original": id.Name()})
}

// getOrCreate is the classic compute-if-absent: the fast path is a read
// lock; losers of a concurrent create race discard their instance and adopt
// the winner's.
func (r *Registry) getOrCreate(kind string, id *Id, create func() Meter) Meter {
	key := kind + "|" + id.MapKey()

	r.mu.RLock()
	m := r.meters[key]
	r.mu.RUnlock()

	if m != nil {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m := r.meters[key]; m != nil {
		return m
	}

	m = create()
	if c, ok := m.(corer); ok {
		core := c.core()
		core.registry = r
		core.internKey = key
	}

	r.meters[key] = m

	return m
}

// reinsert puts a resurrected meter back, unless a replacement was interned
// in the meantime (the replacement wins; the old handle keeps accepting
// updates but is no longer harvested).
func (r *Registry) reinsert(key string, m Meter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.meters[key]; !exists {
		r.meters[key] = m
	}
}

// =============================================================================
// ITERATION AND EXPIRY
// =============================================================================

// Meters returns a snapshot of the live meters. Creations and expirations
// concurrent with the call may or may not be reflected.
func (r *Registry) Meters() []Meter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Meter, 0, len(r.meters))
	for _, m := range r.meters {
		out = append(out, m)
	}

	return out
}

// Size returns the number of live meters.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.meters)
}

// RemoveExpired sweeps meters whose last update is older than the TTL and
// returns how many were removed. The expiry condition is re-checked under
// the write lock so a meter updated while the sweep runs is not removed; an
// update racing the removal itself resurrects the meter on its next update.
func (r *Registry) RemoveExpired() int {
	now := r.clock.WallTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	ttlMs := r.ttl.Milliseconds()
	removed := 0

	for key, m := range r.meters {
		c, ok := m.(corer)
		if !ok {
			continue
		}

		core := c.core()
		if now-core.lastUpdate.Load() > ttlMs {
			delete(r.meters, key)
			core.removed.Store(true)

			removed++
		}
	}

	if removed > 0 {
		r.log.Debug("expired meters removed", log.Int("count", removed))
	}

	return removed
}

// =============================================================================
// COLLECTORS
// =============================================================================

// RegisterCollector adds a synthetic measurement provider invoked at each
// harvest. Registering a second provider under the same name fails.
func (r *Registry) RegisterCollector(c Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.collectors[name]; exists {
		return errs.Newf(errs.CodeAlreadyExists, "collector %q already registered", name)
	}

	r.collectors[name] = c

	return nil
}

// UnregisterCollector removes a provider by name.
func (r *Registry) UnregisterCollector(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collectors[name]; !exists {
		return errs.Newf(errs.CodeNotFound, "collector %q not registered", name)
	}

	delete(r.collectors, name)

	return nil
}

// Collectors returns a snapshot of the registered providers.
func (r *Registry) Collectors() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collector, 0, len(r.collectors))
	for _, c := range r.collectors {
		out = append(out, c)
	}

	return out
}
