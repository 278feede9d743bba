package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/modshim/pkg/config"
	"github.com/Sumatoshi-tech/modshim/pkg/watch"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "modshim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Empty(t, cfg.ImportMaps)
	assert.False(t, cfg.Override)
	assert.Equal(t, config.DefaultFetchTimeout, cfg.Fetch.Timeout)
	assert.Equal(t, config.DefaultMaxSize, cfg.Fetch.MaxSize)
	assert.Equal(t, config.DefaultHotInterval, cfg.Hot.Interval)
	assert.Equal(t, config.DefaultWatchDir, cfg.Watch.Dir)
	assert.Equal(t, watch.DefaultPatterns, cfg.Watch.Patterns)
	assert.Equal(t, config.DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, config.DefaultLogFormat, cfg.Logging.Format)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)

	size, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(16_000_000), size)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `import_maps:
  - importmap.json
  - overrides.yaml
override: true
skip:
  - "https://cdn.example/**"
fetch:
  timeout: 5s
  max_size: 2MiB
hot:
  interval: 250ms
watch:
  dir: src
  patterns: ["**/*.js"]
  ignore: ["dist/**"]
  debounce: 10ms
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: localhost:4317
  otlp_headers: "x-api-key=secret"
  otlp_insecure: true
  sample_ratio: 0.5
  metrics_addr: ":9464"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"importmap.json", "overrides.yaml"}, cfg.ImportMaps)
	assert.True(t, cfg.Override)
	assert.Equal(t, []string{"https://cdn.example/**"}, cfg.Skip)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Hot.Interval)
	assert.Equal(t, "src", cfg.Watch.Dir)
	assert.Equal(t, []string{"**/*.js"}, cfg.Watch.Patterns)
	assert.Equal(t, []string{"dist/**"}, cfg.Watch.Ignore)
	assert.Equal(t, 10*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "x-api-key=secret", cfg.Telemetry.OTLPHeaders)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRatio, 0.001)
	assert.Equal(t, ":9464", cfg.Telemetry.MetricsAddr)

	size, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), size)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("MODSHIM_FETCH_TIMEOUT", "2s")
	t.Setenv("MODSHIM_LOGGING_FORMAT", "json")
	t.Setenv("MODSHIM_WATCH_DIR", "/srv/app")

	cfg, err := config.LoadConfig(writeConfig(t, "watch:\n  dir: src\n"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, config.LogFormatJSON, cfg.Logging.Format)
	assert.Equal(t, "/srv/app", cfg.Watch.Dir)
}

func TestLoadConfig_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "fetch: [unclosed\n"))
	require.Error(t, err)
}

func TestLoadConfig_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, "future_option: 1\nhot:\n  interval: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Hot.Interval)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"negative timeout", "fetch:\n  timeout: -1s\n", config.ErrInvalidFetchTimeout},
		{"bad size", "fetch:\n  max_size: lots\n", config.ErrInvalidMaxSize},
		{"zero interval", "hot:\n  interval: 0s\n", config.ErrInvalidHotInterval},
		{"negative debounce", "watch:\n  debounce: -5ms\n", config.ErrInvalidDebounce},
		{"bad skip glob", "skip: [\"https://cdn/[\"]\n", config.ErrInvalidPattern},
		{"bad watch glob", "watch:\n  patterns: [\"{a,b\"]\n", config.ErrInvalidPattern},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"bad ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_MaxSizeBytes_EmptyMeansUnlimited(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}

	size, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Zero(t, size)
}
