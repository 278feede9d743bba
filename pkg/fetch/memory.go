package fetch

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// Memory serves responses from an in-memory table. It counts requests per
// URL, which makes it the fetcher of choice for tests and for analyzing
// sources handed over by a client.
type Memory struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     map[string]int
}

// NewMemory returns an empty Memory fetcher.
func NewMemory() *Memory {
	return &Memory{responses: map[string]Response{}, calls: map[string]int{}}
}

// Set serves body for url with a media type guessed from the URL.
func (m *Memory) Set(url, body string) {
	m.SetResponse(url, Response{URL: url, MIME: DetectMIME(stripQuery(url), []byte(body)), Body: []byte(body)})
}

// SetResponse serves resp for url. An empty resp.URL defaults to url.
func (m *Memory) SetResponse(url string, resp Response) {
	if resp.URL == "" {
		resp.URL = url
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[url] = resp
}

// Delete stops serving url.
func (m *Memory) Delete(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.responses, url)
}

// Calls returns how many times url was requested.
func (m *Memory) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[url]
}

// Fetch returns the stored response or a 404 *Error. Query strings are
// ignored when no exact entry exists, so versioned URLs hit the base entry.
func (m *Memory) Fetch(ctx context.Context, url string) (*Response, error) {
	err := ctx.Err()
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[url]++

	resp, ok := m.responses[url]
	if !ok {
		resp, ok = m.responses[stripQuery(url)]
		if ok {
			resp.URL = url
		}
	}

	if !ok {
		return nil, &Error{URL: url, Status: http.StatusNotFound}
	}

	resp.Body = append([]byte(nil), resp.Body...)

	return &resp, nil
}

func stripQuery(url string) string {
	if i := strings.IndexAny(url, "?#"); i != -1 {
		return url[:i]
	}

	return url
}
