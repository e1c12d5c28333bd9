package publish

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/xraph/pulse/errs"
)

// Default configuration values.
const (
	DefaultStep           = 5 * time.Second
	DefaultMeterTTL       = 15 * time.Minute
	DefaultConnectTimeout = 1 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultBatchSize      = 10000
	DefaultNumThreads     = 2
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultValidTagCharacters is the allowed character set for names, tag
	// keys, and tag values on the egress path.
	DefaultValidTagCharacters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~^"
)

// Config enumerates the publication options. Zero values are filled from the
// defaults by Normalize; Validate reports a structured INVALID_CONFIG error
// for anything a publisher cannot run with.
type Config struct {
	// Enabled is the master switch. When false the reporter starts but
	// performs no harvests or sends.
	Enabled bool `validate:"-"`

	// Step is the harvest period. It must divide evenly into 60 seconds so
	// step boundaries align across processes.
	Step time.Duration `validate:"gt=0"`

	// MeterTTL is the expiration window for idle meters.
	MeterTTL time.Duration `validate:"gt=0"`

	// URI is the aggregation endpoint measurements are posted to.
	URI string `validate:"omitempty,url"`

	// HTTP timeouts.
	ConnectTimeout time.Duration `validate:"gt=0"`
	ReadTimeout    time.Duration `validate:"gt=0"`

	// BatchSize is the maximum number of measurements per request.
	BatchSize int `validate:"gt=0"`

	// NumThreads is the publisher worker pool size.
	NumThreads int `validate:"gt=0"`

	// MaxAttempts bounds retries for a single batch.
	MaxAttempts int `validate:"gt=0"`

	// InitialBackoff is the first retry delay; backoff grows exponentially
	// and is capped at Step.
	InitialBackoff time.Duration `validate:"gt=0"`

	// CommonTags are merged into every outbound measurement. Entries with
	// empty values are dropped during normalization.
	CommonTags map[string]string `validate:"-"`

	// UserTagsOverride lets meter tags win over common tags on key
	// collision. By default common tags win.
	UserTagsOverride bool `validate:"-"`

	// ValidTagCharacters is the allowed character set for sanitization.
	ValidTagCharacters string `validate:"required"`
}

// DefaultConfig returns a configuration with every option at its default.
// The URI is empty; publishing requires one unless Enabled is false.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Step:               DefaultStep,
		MeterTTL:           DefaultMeterTTL,
		ConnectTimeout:     DefaultConnectTimeout,
		ReadTimeout:        DefaultReadTimeout,
		BatchSize:          DefaultBatchSize,
		NumThreads:         DefaultNumThreads,
		MaxAttempts:        DefaultMaxAttempts,
		InitialBackoff:     DefaultInitialBackoff,
		CommonTags:         map[string]string{},
		ValidTagCharacters: DefaultValidTagCharacters,
	}
}

// Normalize fills zero values from the defaults and drops common tags with
// empty keys or values.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Step == 0 {
		c.Step = def.Step
	}

	if c.MeterTTL == 0 {
		c.MeterTTL = def.MeterTTL
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}

	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}

	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}

	if c.NumThreads == 0 {
		c.NumThreads = def.NumThreads
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}

	if c.InitialBackoff == 0 {
		c.InitialBackoff = def.InitialBackoff
	}

	if c.ValidTagCharacters == "" {
		c.ValidTagCharacters = def.ValidTagCharacters
	}

	tags := make(map[string]string, len(c.CommonTags))

	for k, v := range c.CommonTags {
		if k == "" || v == "" {
			continue
		}

		tags[k] = v
	}

	c.CommonTags = tags
}

// Validate checks the configuration, returning a structured fatal error on
// the first violation. Call Normalize first to fill defaults.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errs.Wrap(errs.CodeInvalidConfig, "invalid publish configuration", err)
	}

	if time.Minute%c.Step != 0 {
		return errs.Newf(errs.CodeInvalidConfig,
			"step %s must divide evenly into 60s", c.Step)
	}

	if c.Enabled && c.URI == "" {
		return errs.New(errs.CodeInvalidConfig, "uri is required when publishing is enabled")
	}

	return nil
}

// LoadDotenv seeds the process environment from a dotenv file so FromEnv can
// pick the values up. A missing file is not an error when path is empty.
func LoadDotenv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.CodeInvalidConfig, "loading .env", err)
		}

		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return errs.Wrap(errs.CodeInvalidConfig, "loading dotenv file", err)
	}

	return nil
}

// FromEnv builds a configuration from PULSE_* environment variables on top
// of the defaults:
//
//	PULSE_ENABLED, PULSE_STEP, PULSE_METER_TTL, PULSE_URI,
//	PULSE_CONNECT_TIMEOUT, PULSE_READ_TIMEOUT, PULSE_BATCH_SIZE,
//	PULSE_NUM_THREADS, PULSE_COMMON_TAGS (k=v,k=v),
//	PULSE_VALID_TAG_CHARACTERS
func FromEnv() (Config, error) {
	c := DefaultConfig()

	if v, ok := os.LookupEnv("PULSE_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, errs.Wrap(errs.CodeInvalidConfig, "PULSE_ENABLED", err)
		}

		c.Enabled = b
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"PULSE_STEP", &c.Step},
		{"PULSE_METER_TTL", &c.MeterTTL},
		{"PULSE_CONNECT_TIMEOUT", &c.ConnectTimeout},
		{"PULSE_READ_TIMEOUT", &c.ReadTimeout},
		{"PULSE_INITIAL_BACKOFF", &c.InitialBackoff},
	}

	for _, d := range durations {
		if v, ok := os.LookupEnv(d.env); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return c, errs.Wrap(errs.CodeInvalidConfig, d.env, err)
			}

			*d.dst = parsed
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"PULSE_BATCH_SIZE", &c.BatchSize},
		{"PULSE_NUM_THREADS", &c.NumThreads},
		{"PULSE_MAX_ATTEMPTS", &c.MaxAttempts},
	}

	for _, i := range ints {
		if v, ok := os.LookupEnv(i.env); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return c, errs.Wrap(errs.CodeInvalidConfig, i.env, err)
			}

			*i.dst = parsed
		}
	}

	if v, ok := os.LookupEnv("PULSE_URI"); ok {
		c.URI = v
	}

	if v, ok := os.LookupEnv("PULSE_VALID_TAG_CHARACTERS"); ok {
		c.ValidTagCharacters = v
	}

	if v, ok := os.LookupEnv("PULSE_COMMON_TAGS"); ok {
		for _, pair := range strings.Split(v, ",") {
			k, val, found := strings.Cut(pair, "=")
			if !found {
				return c, errs.Newf(errs.CodeInvalidConfig,
					"PULSE_COMMON_TAGS entry %q is not k=v", pair)
			}

			c.CommonTags[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}

	c.Normalize()

	return c, nil
}
