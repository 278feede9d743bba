package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricLoadsTotal    = "modshim.loads.total"
	metricLoadDuration  = "modshim.load.duration.seconds"
	metricLoadBytes     = "modshim.load.bytes"
	metricShellsTotal   = "modshim.shells.total"
	metricReloadsTotal  = "modshim.hot.reloads.total"
	metricInflightLoads = "modshim.inflight.loads"
	metricInvalidations = "modshim.hot.invalidations.total"

	attrMIME = "mime"

	statusOK = "ok"
)

// LoaderMetrics holds OTel instruments for module loading and hot reload.
// All methods are safe to call on a nil receiver.
type LoaderMetrics struct {
	loadsTotal    metric.Int64Counter
	loadDuration  metric.Float64Histogram
	loadBytes     metric.Int64Counter
	shellsTotal   metric.Int64Counter
	reloadsTotal  metric.Int64Counter
	invalidations metric.Int64Counter
	inflightLoads metric.Int64UpDownCounter
}

// NewLoaderMetrics creates loader metric instruments from the given meter.
func NewLoaderMetrics(mt metric.Meter) (*LoaderMetrics, error) {
	b := &instrumentBuilder{meter: mt}

	lm := &LoaderMetrics{
		loadsTotal:    b.counter(metricLoadsTotal, "Module loads by media type and status", "{load}"),
		loadDuration:  b.seconds(metricLoadDuration, "Fetch and analysis duration per module in seconds"),
		loadBytes:     b.counter(metricLoadBytes, "Source bytes fetched", "By"),
		shellsTotal:   b.counter(metricShellsTotal, "Shell modules synthesized for import cycles", "{shell}"),
		reloadsTotal:  b.counter(metricReloadsTotal, "Hot reloads by status", "{reload}"),
		invalidations: b.counter(metricInvalidations, "Invalidation requests", "{invalidation}"),
		inflightLoads: b.gauge(metricInflightLoads, "Modules currently being fetched", "{load}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return lm, nil
}

// RecordLoad records one fetched and analyzed module.
func (lm *LoaderMetrics) RecordLoad(ctx context.Context, mime string, size int, duration time.Duration, err error) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMIME, mime),
		attribute.String(attrStatus, statusOf(err)),
	)

	lm.loadsTotal.Add(ctx, 1, attrs)
	lm.loadDuration.Record(ctx, duration.Seconds(), attrs)
	lm.loadBytes.Add(ctx, int64(size), metric.WithAttributes(attribute.String(attrMIME, mime)))
}

// RecordShell counts a synthesized cycle shell.
func (lm *LoaderMetrics) RecordShell(ctx context.Context) {
	if lm == nil {
		return
	}

	lm.shellsTotal.Add(ctx, 1)
}

// RecordInvalidation counts an invalidation request.
func (lm *LoaderMetrics) RecordInvalidation(ctx context.Context) {
	if lm == nil {
		return
	}

	lm.invalidations.Add(ctx, 1)
}

// RecordReload records a completed hot reload.
func (lm *LoaderMetrics) RecordReload(ctx context.Context, err error) {
	if lm == nil {
		return
	}

	lm.reloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, statusOf(err))))
}

// TrackInflight increments the in-flight load gauge and returns a function
// to decrement it.
func (lm *LoaderMetrics) TrackInflight(ctx context.Context) func() {
	if lm == nil {
		return func() {}
	}

	lm.inflightLoads.Add(ctx, 1)

	return func() {
		lm.inflightLoads.Add(ctx, -1)
	}
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}

	return statusOK
}
