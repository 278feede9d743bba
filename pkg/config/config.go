// Package config loads modshim settings from a YAML file, MODSHIM_ environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/modshim/pkg/watch"
)

const (
	configName      = "modshim"
	configType      = "yaml"
	envPrefix       = "MODSHIM"
	envKeySeparator = "_"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Sentinel validation errors.
var (
	// ErrInvalidFetchTimeout indicates a negative fetch timeout.
	ErrInvalidFetchTimeout = errors.New("fetch.timeout must be non-negative")
	// ErrInvalidMaxSize indicates an unparsable size limit.
	ErrInvalidMaxSize = errors.New("fetch.max_size must be a byte size")
	// ErrInvalidHotInterval indicates a non-positive reload interval.
	ErrInvalidHotInterval = errors.New("hot.interval must be positive")
	// ErrInvalidDebounce indicates a negative watch debounce.
	ErrInvalidDebounce = errors.New("watch.debounce must be non-negative")
	// ErrInvalidPattern indicates a malformed skip or watch glob.
	ErrInvalidPattern = errors.New("invalid glob pattern")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("logging.format must be text or json")
	// ErrInvalidSampleRatio indicates a sampling ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
)

// Config holds all modshim configuration.
type Config struct {
	// ImportMaps are import map files composed in order at startup.
	ImportMaps []string        `mapstructure:"import_maps"`
	Override   bool            `mapstructure:"override"`
	Skip       []string        `mapstructure:"skip"`
	Fetch      FetchConfig     `mapstructure:"fetch"`
	Hot        HotConfig       `mapstructure:"hot"`
	Watch      WatchConfig     `mapstructure:"watch"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// FetchConfig bounds module fetches.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	MaxSize string        `mapstructure:"max_size"`
}

// HotConfig configures hot reload.
type HotConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Dir      string        `mapstructure:"dir"`
	Patterns []string      `mapstructure:"patterns"`
	Ignore   []string      `mapstructure:"ignore"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	// OTLPHeaders is a comma-separated key=value list sent with every export.
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
}

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise modshim.yaml is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("import_maps", []string{})
	viperCfg.SetDefault("override", false)
	viperCfg.SetDefault("skip", []string{})

	viperCfg.SetDefault("fetch.timeout", DefaultFetchTimeout)
	viperCfg.SetDefault("fetch.max_size", DefaultMaxSize)

	viperCfg.SetDefault("hot.interval", DefaultHotInterval)

	viperCfg.SetDefault("watch.dir", DefaultWatchDir)
	viperCfg.SetDefault("watch.patterns", slices.Clone(watch.DefaultPatterns))
	viperCfg.SetDefault("watch.ignore", []string{})
	viperCfg.SetDefault("watch.debounce", DefaultWatchDebounce)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", DefaultOTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_headers", DefaultOTLPHeaders)
	viperCfg.SetDefault("telemetry.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("telemetry.metrics_addr", DefaultMetricsAddr)
}

// Validate checks every field that has a constrained range.
func (c *Config) Validate() error {
	if c.Fetch.Timeout < 0 {
		return ErrInvalidFetchTimeout
	}

	_, err := c.MaxSizeBytes()
	if err != nil {
		return err
	}

	if c.Hot.Interval <= 0 {
		return ErrInvalidHotInterval
	}

	if c.Watch.Debounce < 0 {
		return ErrInvalidDebounce
	}

	for _, pattern := range slices.Concat(c.Skip, c.Watch.Patterns, c.Watch.Ignore) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	_, err = c.LogLevel()
	if err != nil {
		return err
	}

	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

// MaxSizeBytes parses Fetch.MaxSize. An empty or zero size means no limit.
func (c *Config) MaxSizeBytes() (int64, error) {
	trimmed := strings.TrimSpace(c.Fetch.MaxSize)
	if trimmed == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMaxSize, c.Fetch.MaxSize)
	}

	return int64(size), nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}
