package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPTimeout bounds a single request when no client is supplied.
const defaultHTTPTimeout = 30 * time.Second

// HTTP fetches http and https URLs.
type HTTP struct {
	Client *http.Client
}

// NewHTTP returns an HTTP fetcher. A nil client gets a default one.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &HTTP{Client: client}
}

// Fetch performs a GET and fails with *Error on non-2xx responses.
func (h *HTTP) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{
		URL:  resp.Request.URL.String(),
		MIME: resp.Header.Get("Content-Type"),
		Body: body,
	}, nil
}
