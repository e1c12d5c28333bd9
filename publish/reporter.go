package publish

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/pulse/log"
	"github.com/xraph/pulse/meter"
)

// drainTimeout bounds how long Stop waits for in-flight batches before
// discarding them.
const drainTimeout = 5 * time.Second

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterLogger sets the logger.
func WithReporterLogger(l log.Logger) ReporterOption {
	return func(r *Reporter) { r.log = l }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) ReporterOption {
	return func(r *Reporter) { r.client = c }
}

// Reporter drives the publication pipeline: a step-aligned scheduler
// harvests every live meter, normalizes and sanitizes the measurements, and
// hands batches to a small worker pool that posts them to the aggregation
// endpoint. Submitting a batch blocks while all workers are busy, which
// backpressures the harvest rather than growing an unbounded queue.
type Reporter struct {
	cfg       Config
	registry  *meter.Registry
	clock     meter.Clock
	log       log.Logger
	validator *egressValidator
	sched     *scheduler
	client    *http.Client

	batches   chan []outbound
	workersWg sync.WaitGroup
	started   atomic.Bool
	stats     statsTracker

	// Internal meters: pipeline health reaches the backend like any other
	// measurement.
	droppedHTTP    *meter.Counter
	droppedInvalid *meter.Counter
	schedErrors    *meter.Counter
	skewFast       *meter.Timer
	skewSlow       *meter.Timer
}

// NewReporter creates a reporter for the registry. The configuration is
// normalized and validated; validation failures surface as a structured
// INVALID_CONFIG error.
func NewReporter(registry *meter.Registry, cfg Config, opts ...ReporterOption) (*Reporter, error) {
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Reporter{
		cfg:       cfg,
		registry:  registry,
		clock:     registry.Clock(),
		log:       log.NewNoopLogger(),
		validator: newEgressValidator(cfg.ValidTagCharacters),
		batches:   make(chan []outbound),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.log = r.log.Named("publish")

	if r.client == nil {
		r.client = &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: cfg.NumThreads,
				DisableCompression:  true,
			},
		}
	}

	r.droppedHTTP = registry.Counter(meter.NewId("pulse.publish.dropped.http", nil))
	r.droppedInvalid = registry.Counter(meter.NewId("pulse.measurements.dropped.invalid", nil))
	r.schedErrors = registry.Counter(meter.NewId("pulse.scheduler.errors", nil))
	r.skewFast = registry.Timer(meter.NewId("pulse.clock.skew", map[string]string{"sign": "fast"}))
	r.skewSlow = registry.Timer(meter.NewId("pulse.clock.skew", map[string]string{"sign": "slow"}))

	r.sched = newScheduler(r.clock, cfg.Step, r.log, r.harvestTick, func(any) {
		r.schedErrors.Inc()
	})

	return r, nil
}

// Start launches the worker pool and the harvest scheduler. Starting a
// running reporter is a no-op with a warning.
func (r *Reporter) Start() {
	if !r.started.CompareAndSwap(false, true) {
		r.log.Warn("reporter already started")

		return
	}

	if !r.cfg.Enabled {
		r.log.Info("publishing disabled by configuration")

		return
	}

	r.registry.SetStep(r.cfg.Step)
	r.registry.SetMeterTTL(r.cfg.MeterTTL)

	for i := 0; i < r.cfg.NumThreads; i++ {
		r.workersWg.Add(1)

		go r.worker()
	}

	r.sched.start()
	r.log.Info("reporter started",
		log.String("uri", r.cfg.URI),
		log.Duration("step", r.cfg.Step),
		log.String("instance", r.registry.InstanceID()))
}

// Stop halts the scheduler, flushes one final harvest synchronously, and
// drains the worker pool with a bounded timeout. Outstanding batches after
// the timeout are discarded.
func (r *Reporter) Stop() {
	if !r.started.CompareAndSwap(true, false) {
		return
	}

	if !r.cfg.Enabled {
		return
	}

	r.sched.stop()

	// Final flush: the in-progress interval is attributed to the boundary
	// that would have closed it.
	boundary := r.sched.align(r.clock.WallTime()) + r.cfg.Step.Milliseconds()
	r.harvestTick(boundary)

	close(r.batches)

	done := make(chan struct{})

	go func() {
		r.workersWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		r.log.Warn("publisher drain timed out, discarding outstanding batches")
	}
}

// Stats returns a snapshot of the publisher counters.
func (r *Reporter) Stats() Stats {
	return r.stats.snapshot()
}

// =============================================================================
// HARVEST
// =============================================================================

// harvestTick runs at each step boundary: sweep expired meters, harvest and
// normalize every live meter and collector, and enqueue batches.
func (r *Reporter) harvestTick(boundary int64) {
	if !r.cfg.Enabled {
		return
	}

	r.registry.RemoveExpired()

	out := r.gather(boundary)
	if len(out) == 0 {
		return
	}

	for start := 0; start < len(out); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(out) {
			end = len(out)
		}

		r.batches <- out[start:end]
	}
}

func (r *Reporter) gather(boundary int64) []outbound {
	stepSec := r.cfg.Step.Seconds()

	var out []outbound

	for _, m := range r.registry.Meters() {
		for _, mm := range r.safeMeasure(m) {
			if ob, ok := r.normalize(mm, boundary, stepSec); ok {
				out = append(out, ob)
			}
		}
	}

	for _, c := range r.registry.Collectors() {
		for _, mm := range r.safeCollect(c) {
			if ob, ok := r.normalize(mm, boundary, stepSec); ok {
				out = append(out, ob)
			}
		}
	}

	return out
}

// normalize applies rate conversion and the egress validator. Measurements
// carrying an explicit dstype are emitted as-is; rate statistics without one
// are divided by the step.
func (r *Reporter) normalize(mm meter.Measurement, boundary int64, stepSec float64) (outbound, bool) {
	if _, explicit := mm.ID.Tag(meter.DstypeTagKey); !explicit {
		stat, _ := mm.ID.Tag(meter.StatisticTagKey)
		if rateStatistics[stat] {
			mm.Value /= stepSec
		}
	}

	mm.Timestamp = boundary

	ob, ok := r.validator.apply(mm, r.cfg.CommonTags, r.cfg.UserTagsOverride)
	if !ok {
		r.droppedInvalid.Inc()
		r.log.Debug("measurement dropped by egress validation",
			log.String("id", mm.ID.String()))

		return outbound{}, false
	}

	return ob, true
}

// safeMeasure contains per-meter failures so one broken meter cannot abort
// the harvest.
func (r *Reporter) safeMeasure(m meter.Meter) (out []meter.Measurement) {
	defer func() {
		if rec := recover(); rec != nil {
			r.schedErrors.Inc()
			r.log.Error("meter measure panicked",
				log.String("id", m.ID().String()), log.Any("panic", rec))

			out = nil
		}
	}()

	return m.Measure()
}

func (r *Reporter) safeCollect(c meter.Collector) (out []meter.Measurement) {
	defer func() {
		if rec := recover(); rec != nil {
			r.schedErrors.Inc()
			r.log.Error("collector panicked",
				log.String("collector", c.Name()), log.Any("panic", rec))

			out = nil
		}
	}()

	return c.Collect()
}

func (r *Reporter) worker() {
	defer r.workersWg.Done()

	for batch := range r.batches {
		r.sendBatch(batch)
	}
}
