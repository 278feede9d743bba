package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "modshim.requests.total"
	metricRequestDuration  = "modshim.request.duration.seconds"
	metricErrorsTotal      = "modshim.errors.total"
	metricInflightRequests = "modshim.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	statusError = "error"
)

// REDMetrics counts rate, errors and duration of request-style operations
// such as MCP tool calls. A nil *REDMetrics records nothing.
type REDMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := &instrumentBuilder{meter: mt}

	rm := &REDMetrics{
		requests: b.counter(metricRequestsTotal, "Requests by operation and status", "{request}"),
		duration: b.seconds(metricRequestDuration, "Request duration in seconds"),
		errors:   b.counter(metricErrorsTotal, "Failed requests by operation", "{error}"),
		inflight: b.gauge(metricInflightRequests, "Requests currently being served", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records one finished request of op.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	opAttr := attribute.String(attrOp, op)
	attrs := metric.WithAttributes(opAttr, attribute.String(attrStatus, status))

	rm.requests.Add(ctx, 1, attrs)
	rm.duration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errors.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// TrackInflight raises the in-flight gauge for op until the returned func
// is called.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if rm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflight.Add(ctx, 1, attrs)

	return func() { rm.inflight.Add(ctx, -1, attrs) }
}
