package publish

import (
	"strings"

	"github.com/xraph/pulse/meter"
)

// egressValidator sanitizes measurements on the way out: characters outside
// the configured set are replaced by a single underscore in the name, tag
// keys, and tag values; measurements whose name is empty after sanitization
// are rejected; and a missing atlas.dstype is inferred so the backend does
// not default to a rate.
type egressValidator struct {
	allowed map[rune]bool
}

func newEgressValidator(validChars string) *egressValidator {
	allowed := make(map[rune]bool, len(validChars))
	for _, r := range validChars {
		allowed[r] = true
	}

	return &egressValidator{allowed: allowed}
}

func (v *egressValidator) sanitize(s string) string {
	clean := true

	for _, r := range s {
		if !v.allowed[r] {
			clean = false

			break
		}
	}

	if clean {
		return s
	}

	var sb strings.Builder

	sb.Grow(len(s))

	for _, r := range s {
		if v.allowed[r] {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}

	return sb.String()
}

// statistics the backend accumulates by addition; everything else
// aggregates by max or is passed through as a gauge.
var rateStatistics = map[string]bool{
	meter.StatCount:          true,
	meter.StatTotalAmount:    true,
	meter.StatTotalTime:      true,
	meter.StatTotalOfSquares: true,
	meter.StatPercentile:     true,
}

// inferDstype picks the dstype for a measurement that carries none.
func inferDstype(stat string) string {
	if rateStatistics[stat] {
		return meter.DstypeRate
	}

	return meter.DstypeGauge
}

// outbound is a fully sanitized measurement ready for encoding: name plus
// flattened tags including the reserved keys.
type outbound struct {
	tags      map[string]string // includes "name"
	timestamp int64
	value     float64
}

// apply merges common tags, sanitizes every string, and resolves reserved
// keys. It returns false when the measurement must be dropped.
func (v *egressValidator) apply(m meter.Measurement, commonTags map[string]string, userOverride bool) (outbound, bool) {
	name := v.sanitize(m.ID.Name())
	if strings.Trim(name, "_") == "" {
		// Nothing of the original name survived sanitization.
		return outbound{}, false
	}

	tags := make(map[string]string, len(commonTags)+8)

	// Merge order decides collisions: by default common tags win over user
	// tags; reserved keys set by the library always win over both.
	userTags := make(map[string]string)
	reserved := make(map[string]string)

	for _, t := range m.ID.Tags() {
		if meter.ReservedTagKeys[t.Key] {
			reserved[t.Key] = t.Value
		} else {
			userTags[t.Key] = t.Value
		}
	}

	if userOverride {
		for k, val := range commonTags {
			tags[k] = val
		}

		for k, val := range userTags {
			tags[k] = val
		}
	} else {
		for k, val := range userTags {
			tags[k] = val
		}

		for k, val := range commonTags {
			if meter.ReservedTagKeys[k] {
				continue
			}

			tags[k] = val
		}
	}

	for k, val := range reserved {
		tags[k] = val
	}

	if _, ok := tags[meter.DstypeTagKey]; !ok {
		tags[meter.DstypeTagKey] = inferDstype(tags[meter.StatisticTagKey])
	}

	sanitized := make(map[string]string, len(tags)+1)

	for k, val := range tags {
		key := v.sanitize(k)
		if key == "" || val == "" {
			continue
		}

		// Reserved keys and their values pass through untouched, even when
		// the configured set excludes a character they use (such as the dot
		// in atlas.dstype).
		if meter.ReservedTagKeys[k] {
			key = k
		} else {
			val = v.sanitize(val)
		}

		sanitized[key] = val
	}

	sanitized["name"] = name

	return outbound{
		tags:      sanitized,
		timestamp: m.Timestamp,
		value:     m.Value,
	}, true
}
