package meter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func measurementByStat(t *testing.T, ms []Measurement, stat string) Measurement {
	t.Helper()

	for _, m := range ms {
		if s, _ := m.ID.Tag(StatisticTagKey); s == stat {
			return m
		}
	}

	t.Fatalf("no measurement with statistic %q", stat)

	return Measurement{}
}

func TestTimer_RecordAndMeasure(t *testing.T) {
	r, _ := newTestRegistry(t)
	tm := r.Timer(NewId("request.latency", nil))

	tm.Record(42 * time.Millisecond)

	ms := tm.Measure()
	require.Len(t, ms, 4)

	assert.InDelta(t, 1.0, measurementByStat(t, ms, StatCount).Value, 1e-12)
	assert.InDelta(t, 0.042, measurementByStat(t, ms, StatTotalTime).Value, 1e-12)
	assert.InDelta(t, 0.042*0.042, measurementByStat(t, ms, StatTotalOfSquares).Value, 1e-12)
	assert.InDelta(t, 0.042, measurementByStat(t, ms, StatMax).Value, 1e-12)

	assert.Empty(t, tm.Measure(), "accumulators drain on harvest")
}

func TestTimer_NegativeDurationIgnored(t *testing.T) {
	r, _ := newTestRegistry(t)
	tm := r.Timer(NewId("request.latency", nil))

	tm.Record(-5 * time.Millisecond)

	assert.Equal(t, 0.0, tm.Count())
	assert.Empty(t, tm.Measure())
}

func TestTimer_RecordZero(t *testing.T) {
	r, _ := newTestRegistry(t)
	tm := r.Timer(NewId("request.latency", nil))

	tm.Record(0)

	ms := tm.Measure()
	require.Len(t, ms, 4)
	assert.Equal(t, 1.0, measurementByStat(t, ms, StatCount).Value)
	assert.Equal(t, 0.0, measurementByStat(t, ms, StatTotalTime).Value)
	assert.Equal(t, 0.0, measurementByStat(t, ms, StatMax).Value)
}

func TestTimer_RecordFunc(t *testing.T) {
	r, clock := newTestRegistry(t)
	tm := r.Timer(NewId("job.duration", nil))

	tm.RecordFunc(func() {
		clock.Advance(250 * time.Millisecond)
	})

	assert.Equal(t, 1.0, tm.Count())
	assert.InDelta(t, 0.25, tm.TotalTime(), 1e-9)
}

func TestTimer_RecordFuncOnPanic(t *testing.T) {
	r, clock := newTestRegistry(t)
	tm := r.Timer(NewId("job.duration", nil))

	assert.Panics(t, func() {
		tm.RecordFunc(func() {
			clock.Advance(100 * time.Millisecond)
			panic("boom")
		})
	})

	assert.Equal(t, 1.0, tm.Count(), "elapsed time is recorded on exceptional exit")
	assert.InDelta(t, 0.1, tm.TotalTime(), 1e-9)
}

func TestTimer_RecordCallable(t *testing.T) {
	r, clock := newTestRegistry(t)
	tm := r.Timer(NewId("job.duration", nil))

	sentinel := errors.New("job failed")

	err := tm.RecordCallable(func() error {
		clock.Advance(50 * time.Millisecond)

		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1.0, tm.Count())
}

func TestTimer_Start(t *testing.T) {
	r, clock := newTestRegistry(t)
	tm := r.Timer(NewId("job.duration", nil))

	stop := tm.Start()
	clock.Advance(2 * time.Second)
	stop()

	assert.InDelta(t, 2.0, tm.TotalTime(), 1e-9)
}
