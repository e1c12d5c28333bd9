package meter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGauge_LastWriterWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	g := r.Gauge(NewId("queue.depth", nil))

	assert.True(t, math.IsNaN(g.Value()))

	g.Set(10)
	g.Set(4)
	assert.Equal(t, 4.0, g.Value())

	ms := g.Measure()
	require.Len(t, ms, 1)
	assert.Equal(t, 4.0, ms[0].Value)

	stat, _ := ms[0].ID.Tag(StatisticTagKey)
	assert.Equal(t, StatGauge, stat)
}

func TestGauge_NaNSuppressesEmission(t *testing.T) {
	r, _ := newTestRegistry(t)
	g := r.Gauge(NewId("queue.depth", nil))

	assert.Empty(t, g.Measure(), "no sample since last harvest")

	g.Set(1)
	require.Len(t, g.Measure(), 1)

	// The harvest resets the value to NaN until the next Set.
	assert.True(t, math.IsNaN(g.Value()))
	assert.Empty(t, g.Measure())
}

func TestGauge_NegativeValuesEmitted(t *testing.T) {
	r, _ := newTestRegistry(t)
	g := r.Gauge(NewId("temperature", nil))

	g.Set(-40)

	ms := g.Measure()
	require.Len(t, ms, 1)
	assert.Equal(t, -40.0, ms[0].Value)
}

func TestMaxGauge_AccumulatesMaximum(t *testing.T) {
	r, _ := newTestRegistry(t)
	g := r.MaxGauge(NewId("latency.worst", nil))

	g.Set(3)
	g.Set(9)
	g.Set(5)
	assert.Equal(t, 9.0, g.Value())

	ms := g.Measure()
	require.Len(t, ms, 1)
	assert.Equal(t, 9.0, ms[0].Value)

	stat, _ := ms[0].ID.Tag(StatisticTagKey)
	assert.Equal(t, StatMax, stat)

	// Resets on emission.
	assert.Empty(t, g.Measure())
}

func TestMaxGauge_NonPositiveSuppressed(t *testing.T) {
	r, _ := newTestRegistry(t)
	g := r.MaxGauge(NewId("latency.worst", nil))

	g.Set(0)
	assert.Empty(t, g.Measure(), "zero maximum is suppressed")

	g.Set(-2)
	assert.Empty(t, g.Measure())
}
