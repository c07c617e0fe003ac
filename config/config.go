// Package config loads and validates receiver configuration from YAML and
// provides hot-reload via an fsnotify watcher.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/phy-receiver-sim/core"
)

const (
	// DefaultConfigFilename is used when no path is given.
	DefaultConfigFilename = "receiver.yaml"

	// DefaultFilePermissions is the file mode for saved config files.
	DefaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet      = errors.New("configuration is not set")
	errNegativeHeader      = errors.New("header length must not be negative")
	errNegativeSNRFallback = errors.New("snr fallback must not be negative")
	errBadLogLevel         = errors.New("unknown log level")
	errBadLogFormat        = errors.New("unknown log format")
)

// Duration wraps time.Duration so YAML can express it either as a Go
// duration string ("2ms") or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, perr := time.ParseDuration(asString)
		if perr != nil {
			return fmt.Errorf("parse duration %q: %w", asString, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var asInt int64
	if err := value.Decode(&asInt); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %w", err)
	}
	*d = Duration(asInt)
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting the string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ReceiverConfig holds the decider parameters.
type ReceiverConfig struct {
	// Sensitivity is the minimum received power at which decoding can
	// start, in the same linear scale as the scenario power curves.
	Sensitivity float64 `yaml:"sensitivity"`
	// HeaderLength enables the header SNR checkpoint when positive.
	HeaderLength Duration `yaml:"header_length"`
	// MinHeaderSNR is the SNR threshold applied at the header checkpoint.
	MinHeaderSNR float64 `yaml:"min_header_snr"`
	// SNRFallback overrides the zero-divisor SNR fallback; 0 keeps the
	// built-in default.
	SNRFallback float64 `yaml:"snr_fallback"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the root of the receiver configuration file.
type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DeciderConfig converts the receiver section into the core's config type.
func (c *Config) DeciderConfig() core.DeciderConfig {
	return core.DeciderConfig{
		Sensitivity:  c.Receiver.Sensitivity,
		HeaderLength: time.Duration(c.Receiver.HeaderLength),
		MinHeaderSNR: c.Receiver.MinHeaderSNR,
		SNRFallback:  c.Receiver.SNRFallback,
	}
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for structurally invalid values.
// Sensitivity is deliberately unconstrained: its scale is defined by the
// scenario's power curves.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Receiver.HeaderLength < 0 {
		return errNegativeHeader
	}
	if cfg.Receiver.SNRFallback < 0 {
		return errNegativeSNRFallback
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", errBadLogLevel, cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: %q", errBadLogFormat, cfg.Logging.Format)
	}

	return nil
}
