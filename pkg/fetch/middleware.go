package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// fetchSpanName names the span created per fetch.
const fetchSpanName = "modshim.fetch"

// Mux routes each URL to a fetcher by scheme.
type Mux struct {
	schemes map[string]Fetcher
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{schemes: map[string]Fetcher{}}
}

// Handle routes scheme (without the colon) to f.
func (m *Mux) Handle(scheme string, f Fetcher) *Mux {
	m.schemes[strings.ToLower(scheme)] = f

	return m
}

// Fetch dispatches by scheme and fails for unrouted schemes.
func (m *Mux) Fetch(ctx context.Context, url string) (*Response, error) {
	scheme, _, ok := strings.Cut(url, ":")
	if ok {
		if f, found := m.schemes[strings.ToLower(scheme)]; found {
			return f.Fetch(ctx, url)
		}
	}

	return nil, &Error{URL: url, Err: fmt.Errorf("no fetcher for scheme %q", scheme)}
}

// Default routes http, https and file URLs.
func Default() *Mux {
	web := NewHTTP(nil)

	return NewMux().Handle("http", web).Handle("https", web).Handle("file", NewFile())
}

// WithTracing creates a client span per fetch.
func WithTracing(tracer trace.Tracer) Middleware {
	return func(next Fetcher) Fetcher {
		if tracer == nil {
			return next
		}

		return Func(func(ctx context.Context, url string) (*Response, error) {
			ctx, span := tracer.Start(ctx, fetchSpanName,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(semconv.URLFull(url)),
			)
			defer span.End()

			resp, err := next.Fetch(ctx, url)
			if err != nil {
				var fetchErr *Error
				if errors.As(err, &fetchErr) && fetchErr.Status != 0 {
					span.SetAttributes(semconv.HTTPResponseStatusCode(fetchErr.Status))
				}

				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())

				return nil, err
			}

			span.SetAttributes(
				attribute.String("modshim.response_url", resp.URL),
				attribute.String("modshim.mime", resp.MediaType()),
				attribute.Int("modshim.bytes", len(resp.Body)),
			)

			return resp, nil
		})
	}
}

// WithLogging logs each fetch at debug level and failures at warn level.
func WithLogging(logger *slog.Logger) Middleware {
	return func(next Fetcher) Fetcher {
		if logger == nil {
			return next
		}

		return Func(func(ctx context.Context, url string) (*Response, error) {
			start := time.Now()

			resp, err := next.Fetch(ctx, url)
			if err != nil {
				logger.WarnContext(ctx, "fetch failed", "url", url, "error", err)

				return nil, err
			}

			logger.DebugContext(ctx, "fetched", "url", url, "response_url", resp.URL,
				"bytes", len(resp.Body), "duration", time.Since(start))

			return resp, nil
		})
	}
}

// WithSizeLimit rejects bodies larger than limit bytes. A non-positive
// limit disables the check.
func WithSizeLimit(limit int64) Middleware {
	return func(next Fetcher) Fetcher {
		if limit <= 0 {
			return next
		}

		return Func(func(ctx context.Context, url string) (*Response, error) {
			resp, err := next.Fetch(ctx, url)
			if err != nil {
				return nil, err
			}

			if int64(len(resp.Body)) > limit {
				return nil, &Error{URL: url, Err: fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(resp.Body), limit)}
			}

			return resp, nil
		})
	}
}
