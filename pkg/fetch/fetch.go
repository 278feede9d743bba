// Package fetch retrieves module sources. Fetchers are composed from
// middlewares rather than patched in place.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrFetch is matched by every *Error.
var ErrFetch = errors.New("fetch failed")

// ErrTooLarge is wrapped when a body exceeds the configured size limit.
var ErrTooLarge = errors.New("response body too large")

// Error reports a failed fetch. Status is zero for transport failures.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}

	return "fetch " + e.URL + ": failed"
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrFetch.
func (e *Error) Is(target error) bool { return target == ErrFetch }

// Response is a fetched module body.
type Response struct {
	// URL is the final URL after redirects. It may differ from the request.
	URL string
	// MIME is the Content-Type as served, parameters included.
	MIME string
	Body []byte
}

// MediaType returns the MIME type without parameters, lower-cased.
func (r *Response) MediaType() string {
	mediaType, _, err := mime.ParseMediaType(r.MIME)
	if err != nil {
		mediaType, _, _ = strings.Cut(r.MIME, ";")
	}

	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Fetcher retrieves the body at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, url string) (*Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string) (*Response, error) { return f(ctx, url) }

// Middleware wraps a Fetcher.
type Middleware func(Fetcher) Fetcher

// Chain wraps f with mws so that the first middleware is outermost.
func Chain(f Fetcher, mws ...Middleware) Fetcher {
	for i := len(mws) - 1; i >= 0; i-- {
		f = mws[i](f)
	}

	return f
}
