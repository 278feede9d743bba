package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// Media types the loader understands.
const (
	MIMEJavaScript = "text/javascript"
	MIMEJSON       = "application/json"
	MIMECSS        = "text/css"
	MIMEWasm       = "application/wasm"
	MIMEOctet      = "application/octet-stream"
)

var extensionTypes = map[string]string{
	".js":   MIMEJavaScript,
	".mjs":  MIMEJavaScript,
	".cjs":  MIMEJavaScript,
	".jsx":  MIMEJavaScript,
	".json": MIMEJSON,
	".css":  MIMECSS,
	".wasm": MIMEWasm,
}

var languageTypes = map[string]string{
	"JavaScript": MIMEJavaScript,
	"JSON":       MIMEJSON,
	"CSS":        MIMECSS,
}

// File fetches file:// URLs from the local filesystem.
type File struct{}

// NewFile returns a File fetcher.
func NewFile() *File { return &File{} }

// Fetch reads the file. A missing file fails with status 404.
func (File) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	err := ctx.Err()
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	path, err := PathFromURL(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	body, err := os.ReadFile(path)
	if err != nil {
		status := 0
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}

		return nil, &Error{URL: rawURL, Status: status, Err: err}
	}

	return &Response{URL: rawURL, MIME: DetectMIME(path, body), Body: body}, nil
}

// DetectMIME guesses a media type from the file name, falling back to
// language detection on the content.
func DetectMIME(name string, body []byte) string {
	if mediaType, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mediaType
	}

	if mediaType, ok := languageTypes[enry.GetLanguage(filepath.Base(name), body)]; ok {
		return mediaType
	}

	return MIMEOctet
}

// PathFromURL converts a file:// URL into a local path.
func PathFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file url: %s", rawURL)
	}

	return filepath.FromSlash(u.Path), nil
}

// URLFromPath converts a local path into an absolute file:// URL.
func URLFromPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
