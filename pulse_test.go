package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pulse/errs"
	"github.com/xraph/pulse/meter"
)

// The default-registry slot is process-global, so its lifecycle is covered
// by one test to keep the assertions order-independent.
func TestDefaultRegistryBridge(t *testing.T) {
	r := Default()
	require.NotNil(t, r)

	assert.Same(t, r, Default(), "lazy init must be stable")

	// The slot is write-once: it was claimed by the lazy init above.
	err := SetDefault(meter.New())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAlreadyExists))

	// Convenience constructors intern into the default registry.
	c := Counter("bridge.requests", map[string]string{"method": "GET"})
	c.Inc()

	assert.Same(t, c, r.Counter(meter.NewId("bridge.requests", map[string]string{"method": "GET"})))
	assert.Equal(t, 1.0, c.Count())

	g := Gauge("bridge.depth", nil)
	g.Set(3)
	assert.Equal(t, 3.0, g.Value())

	mg := MaxGauge("bridge.worst", nil)
	mg.Set(9)
	assert.Equal(t, 9.0, mg.Value())

	tm := Timer("bridge.latency", nil)
	tm.Record(10 * time.Millisecond)
	assert.Equal(t, 1.0, tm.Count())

	d := DistributionSummary("bridge.size", nil)
	d.Record(100)
	assert.Equal(t, 1.0, d.Count())

	RecordElapsed("bridge.elapsed", nil, func() {})
	assert.Equal(t, 1.0, Timer("bridge.elapsed", nil).Count())
}
