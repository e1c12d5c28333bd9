package publish

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pulse/meter"
)

func ob(name string, tags map[string]string, value float64) outbound {
	all := map[string]string{"name": name}
	for k, v := range tags {
		all[k] = v
	}

	return outbound{tags: all, timestamp: 5000, value: value}
}

func TestOpFor(t *testing.T) {
	assert.Equal(t, OpAdd, opFor(meter.StatCount))
	assert.Equal(t, OpAdd, opFor(meter.StatTotalAmount))
	assert.Equal(t, OpAdd, opFor(meter.StatTotalTime))
	assert.Equal(t, OpAdd, opFor(meter.StatTotalOfSquares))
	assert.Equal(t, OpAdd, opFor(meter.StatPercentile))
	assert.Equal(t, OpMax, opFor(meter.StatGauge))
	assert.Equal(t, OpMax, opFor(meter.StatMax))
	assert.Equal(t, OpMax, opFor(meter.StatActiveTasks))
	assert.Equal(t, OpMax, opFor(meter.StatDuration))
	assert.Equal(t, OpUnknown, opFor("bogus"))
	assert.Equal(t, OpUnknown, opFor(""))
}

func TestEncodeBatch_RoundTrip(t *testing.T) {
	batch := []outbound{
		ob("requests", map[string]string{meter.StatisticTagKey: meter.StatCount, "method": "GET"}, 3.0),
		ob("queue.depth", map[string]string{meter.StatisticTagKey: meter.StatGauge}, 42.0),
	}

	body, kept, err := EncodeBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)

	decoded, err := DecodeBatch(body)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	byName := map[string]DecodedMeasurement{}
	for _, d := range decoded {
		byName[d.Tags["name"]] = d
	}

	req := byName["requests"]
	assert.Equal(t, OpAdd, req.Op)
	assert.Equal(t, 3.0, req.Value)
	assert.Equal(t, "GET", req.Tags["method"])

	qd := byName["queue.depth"]
	assert.Equal(t, OpMax, qd.Op)
	assert.Equal(t, 42.0, qd.Value)
}

func TestEncodeBatch_StringTableHeader(t *testing.T) {
	batch := []outbound{
		ob("m", map[string]string{meter.StatisticTagKey: meter.StatCount}, 1.0),
	}

	body, _, err := EncodeBatch(batch)
	require.NoError(t, err)

	var raw []any
	require.NoError(t, json.Unmarshal(body, &raw))
	require.NotEmpty(t, raw)

	n := int(raw[0].(float64))
	require.Greater(t, n, 0)
	require.Greater(t, len(raw), 1+n)

	// Table entries are unique strings.
	seen := map[string]bool{}

	for i := 1; i <= n; i++ {
		s, ok := raw[i].(string)
		require.True(t, ok)
		assert.False(t, seen[s], "duplicate string table entry %q", s)

		seen[s] = true
	}
}

func TestEncodeBatch_OmitsBadRecords(t *testing.T) {
	batch := []outbound{
		ob("nan", map[string]string{meter.StatisticTagKey: meter.StatGauge}, math.NaN()),
		ob("unknown-op", map[string]string{meter.StatisticTagKey: "bogus"}, 1.0),
		ob("zero-add", map[string]string{meter.StatisticTagKey: meter.StatCount}, 0.0),
		ob("negative-add", map[string]string{meter.StatisticTagKey: meter.StatCount}, -5.0),
		ob("kept", map[string]string{meter.StatisticTagKey: meter.StatCount}, 1.0),
		ob("zero-max", map[string]string{meter.StatisticTagKey: meter.StatMax}, 0.0),
	}

	body, kept, err := EncodeBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, kept, "only the valid add and the max record survive")

	decoded, err := DecodeBatch(body)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	names := map[string]bool{}
	for _, d := range decoded {
		names[d.Tags["name"]] = true
	}

	assert.True(t, names["kept"])
	assert.True(t, names["zero-max"])
}

func TestEncodeBatch_Empty(t *testing.T) {
	body, kept, err := EncodeBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, kept)

	decoded, err := DecodeBatch(body)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeBatch_Garbage(t *testing.T) {
	_, err := DecodeBatch([]byte("{"))
	assert.Error(t, err)

	_, err = DecodeBatch([]byte("[]"))
	assert.Error(t, err)

	_, err = DecodeBatch([]byte(`[5,"a"]`))
	assert.Error(t, err, "string table shorter than declared")
}

func TestEncodePayload_Shape(t *testing.T) {
	batch := []outbound{
		ob("requests", map[string]string{meter.StatisticTagKey: meter.StatCount}, 3.0),
	}

	body, err := EncodePayload(map[string]string{"nf.app": "api"}, batch)
	require.NoError(t, err)

	var p struct {
		CommonTags map[string]string `json:"commonTags"`
		Metrics    []struct {
			Tags      map[string]string `json:"tags"`
			Timestamp int64             `json:"timestamp"`
			Value     float64           `json:"value"`
		} `json:"metrics"`
	}

	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "api", p.CommonTags["nf.app"])
	require.Len(t, p.Metrics, 1)
	assert.Equal(t, "requests", p.Metrics[0].Tags["name"])
	assert.Equal(t, int64(5000), p.Metrics[0].Timestamp)
	assert.Equal(t, 3.0, p.Metrics[0].Value)
}
