// Package config loads session-engine tuning from YAML plus environment
// overrides, following the teacher's Load/applyEnvOverrides/validate/
// setDefaults pipeline, scoped down to what a client session needs to tune
// instead of a server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mixer/interactive-go/internal/constants"
)

// Config is the session engine's tunable surface (spec §10.2).
type Config struct {
	BootstrapURL string         `yaml:"bootstrap_url" validate:"omitempty,url"`
	Handshake    Handshake      `yaml:"handshake"`
	Pipeline     Pipeline       `yaml:"pipeline"`
	Throttle     []ThrottleRule `yaml:"throttle" validate:"dive"`
}

// Handshake tunes the init coordinator's connect/handshake polling (spec §4.3).
type Handshake struct {
	BaseDelay  time.Duration `yaml:"base_delay" validate:"omitempty,gt=0"`
	Backoff    int           `yaml:"backoff" validate:"omitempty,gt=1"`
	MaxDelay   time.Duration `yaml:"max_delay" validate:"omitempty,gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"omitempty,gt=0"`
}

// Pipeline tunes the message pipeline (spec §4.5).
type Pipeline struct {
	ChunkSize    int           `yaml:"chunk_size" validate:"omitempty,gt=0"`
	ReplyTimeout time.Duration `yaml:"reply_timeout" validate:"omitempty,gt=0"`
	MaxRetries   int           `yaml:"max_retries" validate:"omitempty,gt=0"`
}

// ThrottleRule is one entry of the default bandwidth-throttle table applied
// at session open, mirroring interactive_set_bandwidth_throttle's shape
// (spec §6, §11 domain stack).
type ThrottleRule struct {
	Category    string `yaml:"category" validate:"required"`
	MaxBytes    int    `yaml:"max_bytes" validate:"gte=0"`
	BytesPerSec int    `yaml:"bytes_per_sec" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (if present) and layers environment overrides and
// defaults on top, the same three-stage pipeline as the teacher's
// config.Load. path == "" skips the file stage entirely.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// No config file on disk — env vars and defaults still apply.
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func (c *Config) applyEnvOverrides() {
	envString("INTERACTIVE_BOOTSTRAP_URL", &c.BootstrapURL)
	envDuration("INTERACTIVE_HANDSHAKE_BASE_DELAY", &c.Handshake.BaseDelay)
	envInt("INTERACTIVE_HANDSHAKE_BACKOFF", &c.Handshake.Backoff)
	envDuration("INTERACTIVE_HANDSHAKE_MAX_DELAY", &c.Handshake.MaxDelay)
	envInt("INTERACTIVE_HANDSHAKE_MAX_RETRIES", &c.Handshake.MaxRetries)
	envInt("INTERACTIVE_PIPELINE_CHUNK_SIZE", &c.Pipeline.ChunkSize)
	envDuration("INTERACTIVE_PIPELINE_REPLY_TIMEOUT", &c.Pipeline.ReplyTimeout)
	envInt("INTERACTIVE_PIPELINE_MAX_RETRIES", &c.Pipeline.MaxRetries)
}

func (c *Config) setDefaults() {
	if c.BootstrapURL == "" {
		c.BootstrapURL = constants.DefaultBootstrapURL
	}
	if c.Handshake.BaseDelay == 0 {
		c.Handshake.BaseDelay = constants.HandshakeBaseDelay
	}
	if c.Handshake.Backoff == 0 {
		c.Handshake.Backoff = constants.HandshakeBackoffBase
	}
	if c.Handshake.MaxDelay == 0 {
		c.Handshake.MaxDelay = constants.HandshakeMaxDelay
	}
	if c.Handshake.MaxRetries == 0 {
		c.Handshake.MaxRetries = constants.HandshakeMaxRetries
	}
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = constants.PipelineChunkSize
	}
	if c.Pipeline.ReplyTimeout == 0 {
		c.Pipeline.ReplyTimeout = constants.ReplyTimeout
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = constants.MaxMessageRetries
	}
}
