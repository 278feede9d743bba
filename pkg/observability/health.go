package observability

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Endpoint paths served by NewMux.
const (
	PathMetrics = "/metrics"
	PathHealth  = "/healthz"
	PathReady   = "/readyz"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck reports nil when a subsystem is ready.
type ReadyCheck func(ctx context.Context) error

// HealthHandler answers liveness probes with 200 {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthStatusOK)
	})
}

// ReadyHandler answers 503 {"status":"unavailable"} while any check fails and
// 200 {"status":"ok"} otherwise.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		for _, check := range checks {
			if check(hr.Context()) != nil {
				writeHealth(rw, http.StatusServiceUnavailable, healthStatusUnavailable)

				return
			}
		}

		writeHealth(rw, http.StatusOK, healthStatusOK)
	})
}

// NewMux routes the metrics scrape handler and the health endpoints, each
// traced through TraceRoute. A nil metrics handler leaves /metrics unrouted.
func NewMux(tracer trace.Tracer, metrics http.Handler, checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()

	if metrics != nil {
		mux.Handle(PathMetrics, TraceRoute(tracer, PathMetrics, metrics))
	}

	mux.Handle(PathHealth, TraceRoute(tracer, PathHealth, HealthHandler()))
	mux.Handle(PathReady, TraceRoute(tracer, PathReady, ReadyHandler(checks...)))

	return mux
}

func writeHealth(rw http.ResponseWriter, code int, status string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	// The status line is already sent; a failed body write has no recourse.
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": status})
}
