package config

import (
	"time"

	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/watch"
)

// Fetch defaults.
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxSize      = "16MB"
)

// Hot reload defaults.
const (
	DefaultHotInterval = hot.DefaultInterval
)

// Watch defaults.
const (
	DefaultWatchDir      = "."
	DefaultWatchDebounce = watch.DefaultDebounce
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultOTLPEndpoint = ""
	DefaultOTLPHeaders  = ""
	DefaultOTLPInsecure = false
	DefaultSampleRatio  = 0.0
	DefaultMetricsAddr  = ""
)
