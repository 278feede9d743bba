package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// durationBucketBoundaries covers 1ms to 60s: local file loads at the low
// end, slow CDN fetches and whole-graph MCP requests at the high end.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// instrumentBuilder creates instruments on one meter and collects every
// creation error. Constructors check err once after the last instrument.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) fail(name string, err error) {
	b.err = errors.Join(b.err, fmt.Errorf("create %s: %w", name, err))
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.fail(name, err)
	}

	return c
}

func (b *instrumentBuilder) gauge(name, desc, unit string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.fail(name, err)
	}

	return g
}

// seconds creates a duration histogram over durationBucketBoundaries.
func (b *instrumentBuilder) seconds(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		b.fail(name, err)
	}

	return h
}
