package publish

import (
	"math"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/pulse/errs"
	"github.com/xraph/pulse/meter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Aggregation operations understood by the backend.
const (
	OpAdd     = 0
	OpMax     = 10
	OpUnknown = -1
)

// opFor maps a statistic to its aggregation operation.
func opFor(stat string) int {
	switch stat {
	case meter.StatCount, meter.StatTotalAmount, meter.StatTotalTime,
		meter.StatTotalOfSquares, meter.StatPercentile:
		return OpAdd
	case meter.StatGauge, meter.StatMax, meter.StatActiveTasks, meter.StatDuration:
		return OpMax
	default:
		return OpUnknown
	}
}

// EncodeBatch renders measurements in the aggregator wire format: a JSON
// array beginning with the string-table length and the table itself,
// followed by one record per measurement:
//
//	tagCount, (keyIdx, valueIdx) x tagCount, opCode, value
//
// Records with an unknown op, a NaN value, or an add op with a
// non-positive value are omitted.
func EncodeBatch(batch []outbound) ([]byte, int, error) {
	kept := make([]outbound, 0, len(batch))

	stringSet := make(map[string]struct{})

	for _, m := range batch {
		op := opFor(m.tags[meter.StatisticTagKey])
		if op == OpUnknown || math.IsNaN(m.value) || (op == OpAdd && m.value <= 0) {
			continue
		}

		kept = append(kept, m)

		for k, v := range m.tags {
			stringSet[k] = struct{}{}
			stringSet[v] = struct{}{}
		}
	}

	table := make([]string, 0, len(stringSet))
	for s := range stringSet {
		table = append(table, s)
	}

	// Sorting makes the output deterministic for a given batch.
	sort.Strings(table)

	index := make(map[string]int, len(table))
	for i, s := range table {
		index[s] = i
	}

	payload := make([]any, 0, 1+len(table)+len(kept)*16)
	payload = append(payload, len(table))

	for _, s := range table {
		payload = append(payload, s)
	}

	for _, m := range kept {
		keys := make([]string, 0, len(m.tags))
		for k := range m.tags {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		payload = append(payload, len(keys))

		for _, k := range keys {
			payload = append(payload, index[k], index[m.tags[k]])
		}

		payload = append(payload, opFor(m.tags[meter.StatisticTagKey]), m.value)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, errs.Wrap(errs.CodeInternal, "encoding batch", err)
	}

	return body, len(kept), nil
}

// DecodedMeasurement is one record recovered from the wire format.
type DecodedMeasurement struct {
	Tags  map[string]string
	Op    int
	Value float64
}

// DecodeBatch parses the aggregator wire format back into records. It is
// the inverse of EncodeBatch modulo string-table permutation, used by the
// round-trip tests and diagnostic tooling.
func DecodeBatch(body []byte) ([]DecodedMeasurement, error) {
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "decoding batch", err)
	}

	if len(raw) == 0 {
		return nil, errs.New(errs.CodeInternal, "empty payload")
	}

	n, err := asInt(raw[0])
	if err != nil || n < 0 || 1+n > len(raw) {
		return nil, errs.New(errs.CodeInternal, "bad string table length")
	}

	table := make([]string, n)

	for i := range n {
		s, ok := raw[1+i].(string)
		if !ok {
			return nil, errs.Newf(errs.CodeInternal, "string table entry %d is not a string", i)
		}

		table[i] = s
	}

	var out []DecodedMeasurement

	pos := 1 + n
	for pos < len(raw) {
		tagCount, err := asInt(raw[pos])
		if err != nil || pos+1+2*tagCount+2 > len(raw) {
			return nil, errs.New(errs.CodeInternal, "truncated record")
		}

		pos++

		tags := make(map[string]string, tagCount)

		for range tagCount {
			ki, kerr := asInt(raw[pos])
			vi, verr := asInt(raw[pos+1])

			if kerr != nil || verr != nil || ki >= n || vi >= n {
				return nil, errs.New(errs.CodeInternal, "bad tag index")
			}

			tags[table[ki]] = table[vi]
			pos += 2
		}

		op, err := asInt(raw[pos])
		if err != nil {
			return nil, errs.New(errs.CodeInternal, "bad op code")
		}

		value, ok := raw[pos+1].(float64)
		if !ok {
			return nil, errs.New(errs.CodeInternal, "bad value")
		}

		pos += 2

		out = append(out, DecodedMeasurement{Tags: tags, Op: op, Value: value})
	}

	return out, nil
}

func asInt(v any) (int, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, errs.New(errs.CodeInternal, "not an integer")
	}

	return int(f), nil
}

// payloadMetric is one entry of the structured publish payload variant.
type payloadMetric struct {
	Tags      map[string]string `json:"tags"`
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
}

type publishPayload struct {
	CommonTags map[string]string `json:"commonTags"`
	Metrics    []payloadMetric   `json:"metrics"`
}

// EncodePayload renders measurements as the structured publish payload
// variant: {commonTags, metrics:[{tags, timestamp, value}]}. Tags here
// include the name; common tags are carried once at the top level.
func EncodePayload(commonTags map[string]string, batch []outbound) ([]byte, error) {
	p := publishPayload{
		CommonTags: commonTags,
		Metrics:    make([]payloadMetric, 0, len(batch)),
	}

	for _, m := range batch {
		if math.IsNaN(m.value) {
			continue
		}

		p.Metrics = append(p.Metrics, payloadMetric{
			Tags:      m.tags,
			Timestamp: m.timestamp,
			Value:     m.value,
		})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "encoding payload", err)
	}

	return body, nil
}
