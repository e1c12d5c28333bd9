package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pulse/errs"
)

func TestConfig_Defaults(t *testing.T) {
	c := DefaultConfig()
	c.URI = "http://localhost:7101/api/v4/update"

	require.NoError(t, c.Validate())

	assert.Equal(t, 5*time.Second, c.Step)
	assert.Equal(t, 15*time.Minute, c.MeterTTL)
	assert.Equal(t, time.Second, c.ConnectTimeout)
	assert.Equal(t, 10*time.Second, c.ReadTimeout)
	assert.Equal(t, 10000, c.BatchSize)
	assert.Equal(t, 2, c.NumThreads)
}

func TestConfig_StepMustDivideMinute(t *testing.T) {
	c := DefaultConfig()
	c.URI = "http://localhost:7101/api/v4/update"
	c.Step = 7 * time.Second

	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidConfig))

	c.Step = 10 * time.Second
	assert.NoError(t, c.Validate())

	c.Step = 60 * time.Second
	assert.NoError(t, c.Validate())
}

func TestConfig_URIRequiredWhenEnabled(t *testing.T) {
	c := DefaultConfig()

	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidConfig))

	c.Enabled = false
	assert.NoError(t, c.Validate())
}

func TestConfig_NormalizeFillsZeroValues(t *testing.T) {
	var c Config

	c.Normalize()

	assert.Equal(t, DefaultStep, c.Step)
	assert.Equal(t, DefaultBatchSize, c.BatchSize)
	assert.Equal(t, DefaultValidTagCharacters, c.ValidTagCharacters)
}

func TestConfig_NormalizeDropsEmptyCommonTags(t *testing.T) {
	c := DefaultConfig()
	c.CommonTags = map[string]string{
		"nf.app":  "api",
		"nf.zone": "",
		"":        "x",
	}

	c.Normalize()

	assert.Equal(t, map[string]string{"nf.app": "api"}, c.CommonTags)
}

func TestConfig_BadURI(t *testing.T) {
	c := DefaultConfig()
	c.URI = "::not-a-url"

	assert.Error(t, c.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PULSE_URI", "http://aggregator:7101/api/v4/update")
	t.Setenv("PULSE_STEP", "10s")
	t.Setenv("PULSE_BATCH_SIZE", "500")
	t.Setenv("PULSE_COMMON_TAGS", "nf.app=api, nf.cluster=api-main")

	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://aggregator:7101/api/v4/update", c.URI)
	assert.Equal(t, 10*time.Second, c.Step)
	assert.Equal(t, 500, c.BatchSize)
	assert.Equal(t, "api", c.CommonTags["nf.app"])
	assert.Equal(t, "api-main", c.CommonTags["nf.cluster"])

	require.NoError(t, c.Validate())
}

func TestFromEnv_BadValues(t *testing.T) {
	t.Setenv("PULSE_STEP", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidConfig))
}

func TestFromEnv_BadCommonTags(t *testing.T) {
	t.Setenv("PULSE_COMMON_TAGS", "nf.app")

	_, err := FromEnv()
	assert.Error(t, err)
}
