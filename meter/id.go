package meter

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// Reserved tag keys managed by the library. On the egress path a common tag
// never replaces the value an identifier carries for one of these keys.
const (
	StatisticTagKey  = "statistic"
	DstypeTagKey     = "atlas.dstype"
	PercentileTagKey = "percentile"
	BucketTagKey     = "bucket"
)

// ReservedTagKeys lists the tag keys owned by the library.
var ReservedTagKeys = map[string]bool{
	StatisticTagKey:  true,
	DstypeTagKey:     true,
	PercentileTagKey: true,
	BucketTagKey:     true,
}

// Statistic tag values emitted by the meter variants.
const (
	StatCount          = "count"
	StatGauge          = "gauge"
	StatMax            = "max"
	StatTotalTime      = "totalTime"
	StatTotalAmount    = "totalAmount"
	StatTotalOfSquares = "totalOfSquares"
	StatPercentile     = "percentile"
	StatActiveTasks    = "activeTasks"
	StatDuration       = "duration"
)

// Values for the atlas.dstype tag, describing how the backend aggregates.
const (
	DstypeRate  = "rate"
	DstypeGauge = "gauge"
	DstypeSum   = "sum"
)

// Tag is a (key, value) pair of strings.
type Tag struct {
	Key   string
	Value string
}

// Id is the immutable identity of a meter: a name plus a canonical tag set,
// sorted by key with unique keys. Every mutation returns a new Id, so values
// are safe to share across goroutines without synchronization. Two Ids that
// are structurally equal hash identically and resolve to the same meter
// within a registry.
type Id struct {
	name string
	tags []Tag // sorted by key, unique keys

	keyOnce sync.Once
	key     string

	hashOnce sync.Once
	hash     uint64
}

// NewId constructs an identifier from a name and an optional tag map.
func NewId(name string, tags map[string]string) *Id {
	ts := make([]Tag, 0, len(tags))
	for k, v := range tags {
		ts = append(ts, Tag{Key: k, Value: v})
	}

	sort.Slice(ts, func(i, j int) bool { return ts[i].Key < ts[j].Key })

	return &Id{name: name, tags: ts}
}

// Name returns the metric name.
func (id *Id) Name() string {
	return id.name
}

// Tags returns a copy of the canonical tag list, sorted by key.
func (id *Id) Tags() []Tag {
	out := make([]Tag, len(id.tags))
	copy(out, id.tags)

	return out
}

// Tag returns the value for the given key and whether it is present.
func (id *Id) Tag(key string) (string, bool) {
	i := sort.Search(len(id.tags), func(i int) bool { return id.tags[i].Key >= key })
	if i < len(id.tags) && id.tags[i].Key == key {
		return id.tags[i].Value, true
	}

	return "", false
}

// WithTag returns a new identifier with the tag added. An existing tag with
// the same key is replaced (last write wins).
func (id *Id) WithTag(key, value string) *Id {
	tags := make([]Tag, 0, len(id.tags)+1)

	inserted := false

	for _, t := range id.tags {
		switch {
		case t.Key == key:
			tags = append(tags, Tag{Key: key, Value: value})
			inserted = true
		case t.Key > key && !inserted:
			tags = append(tags, Tag{Key: key, Value: value}, t)
			inserted = true
		default:
			tags = append(tags, t)
		}
	}

	if !inserted {
		tags = append(tags, Tag{Key: key, Value: value})
	}

	return &Id{name: id.name, tags: tags}
}

// WithTags returns a new identifier whose tag set is the union with the given
// map, later keys overriding earlier ones.
func (id *Id) WithTags(tags map[string]string) *Id {
	if len(tags) == 0 {
		return id
	}

	merged := make(map[string]string, len(id.tags)+len(tags))
	for _, t := range id.tags {
		merged[t.Key] = t.Value
	}

	for k, v := range tags {
		merged[k] = v
	}

	return NewId(id.name, merged)
}

// WithStat returns a new identifier with the statistic tag set.
func (id *Id) WithStat(stat string) *Id {
	return id.WithTag(StatisticTagKey, stat)
}

// MapKey returns the canonical string form used as an interning key. It is
// computed once and cached.
func (id *Id) MapKey() string {
	id.keyOnce.Do(func() {
		var sb strings.Builder

		sb.WriteString(id.name)

		for _, t := range id.tags {
			sb.WriteByte('|')
			sb.WriteString(t.Key)
			sb.WriteByte('=')
			sb.WriteString(t.Value)
		}

		id.key = sb.String()
	})

	return id.key
}

// Hash returns a stable hash mixing name and tags, cached on first use.
func (id *Id) Hash() uint64 {
	id.hashOnce.Do(func() {
		h := fnv.New64a()
		h.Write([]byte(id.MapKey()))
		id.hash = h.Sum64()
	})

	return id.hash
}

// Equal reports structural equality.
func (id *Id) Equal(other *Id) bool {
	if other == nil {
		return false
	}

	return id.MapKey() == other.MapKey()
}

func (id *Id) String() string {
	return id.MapKey()
}
