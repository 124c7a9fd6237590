// Package config holds ringcat settings loaded from flags and YAML files.
package config

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/jacoelho/ringchan"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Size is a byte count that unmarshals from either an integer or a
// humanized string such as "64KiB".
type Size int

// ParseSize parses s with go-humanize.
func ParseSize(s string) (Size, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse size %q", s)
	}
	return Size(n), nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (s *Size) UnmarshalYAML(b []byte) error {
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*s = Size(v)
	case int64:
		*s = Size(v)
	case uint64:
		*s = Size(v)
	case string:
		parsed, err := ParseSize(v)
		if err != nil {
			return err
		}
		*s = parsed
	default:
		return errors.Errorf("config: unsupported size %v", raw)
	}
	return nil
}

// Config describes one ringcat run.
type Config struct {
	Capacity     Size          `yaml:"capacity"`
	Chunk        Size          `yaml:"chunk"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	PartialReads bool          `yaml:"partial_reads"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Capacity:     64 * 1024,
		Chunk:        4 * 1024,
		StallTimeout: ringchan.DefaultStallTimeout,
		PartialReads: true,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "capacity must be positive, got %d", c.Capacity)
	}
	if c.Chunk <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "chunk must be positive, got %d", c.Chunk)
	}
	if c.StallTimeout < 0 {
		return errors.Wrapf(ErrInvalidConfig, "stall_timeout must not be negative, got %s", c.StallTimeout)
	}
	return nil
}

// Options converts the config to channel options.
func (c Config) Options() []ringchan.Option {
	return []ringchan.Option{
		ringchan.WithPartialReads(c.PartialReads),
		ringchan.WithStallTimeout(c.StallTimeout),
	}
}
