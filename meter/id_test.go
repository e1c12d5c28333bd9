package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestId_Equality(t *testing.T) {
	a := NewId("http.requests", map[string]string{"method": "GET", "status": "200"})
	b := NewId("http.requests", map[string]string{"status": "200", "method": "GET"})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.MapKey(), b.MapKey())
}

func TestId_TagsSortedByKey(t *testing.T) {
	id := NewId("m", map[string]string{"zebra": "1", "alpha": "2", "mid": "3"})

	tags := id.Tags()
	require.Len(t, tags, 3)
	assert.Equal(t, "alpha", tags[0].Key)
	assert.Equal(t, "mid", tags[1].Key)
	assert.Equal(t, "zebra", tags[2].Key)
}

func TestId_WithTag(t *testing.T) {
	base := NewId("m", nil)

	a := base.WithTag("k", "v")
	assert.Equal(t, "m", base.MapKey(), "base must be unchanged")

	b := a.WithTag("k", "v2")
	v, ok := a.Tag("k")
	require.True(t, ok)
	assert.Equal(t, "v", v, "original id must be unchanged")

	v, ok = b.Tag("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v, "later write wins")
}

func TestId_WithTagKeepsOrder(t *testing.T) {
	id := NewId("m", map[string]string{"b": "1"}).WithTag("a", "2").WithTag("c", "3")

	tags := id.Tags()
	require.Len(t, tags, 3)
	assert.Equal(t, "a", tags[0].Key)
	assert.Equal(t, "b", tags[1].Key)
	assert.Equal(t, "c", tags[2].Key)
}

func TestId_WithTags(t *testing.T) {
	id := NewId("m", map[string]string{"a": "1", "b": "2"})
	merged := id.WithTags(map[string]string{"b": "override", "c": "3"})

	v, _ := merged.Tag("a")
	assert.Equal(t, "1", v)
	v, _ = merged.Tag("b")
	assert.Equal(t, "override", v)
	v, _ = merged.Tag("c")
	assert.Equal(t, "3", v)

	// Empty map returns the same instance.
	assert.Same(t, id, id.WithTags(nil))
}

func TestId_WithStat(t *testing.T) {
	id := NewId("m", nil).WithStat(StatCount)

	v, ok := id.Tag(StatisticTagKey)
	require.True(t, ok)
	assert.Equal(t, StatCount, v)
}

func TestId_TagMissing(t *testing.T) {
	id := NewId("m", map[string]string{"a": "1"})

	_, ok := id.Tag("nope")
	assert.False(t, ok)
}

func TestId_HashDiffers(t *testing.T) {
	a := NewId("m", map[string]string{"a": "1"})
	b := NewId("m", map[string]string{"a": "2"})

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.MapKey(), b.MapKey())
}

func TestId_ConcurrentHash(t *testing.T) {
	id := NewId("m", map[string]string{"a": "1", "b": "2"})

	done := make(chan uint64, 16)

	for range 16 {
		go func() {
			done <- id.Hash()
		}()
	}

	first := <-done
	for range 15 {
		assert.Equal(t, first, <-done)
	}
}
