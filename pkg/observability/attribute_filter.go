package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// attrAction is what the filter does with one span attribute.
type attrAction uint8

const (
	attrDrop attrAction = iota
	attrKeep
	attrScrubURL
)

// exportedPrefixes are the namespaces modshim and its transports write to.
var exportedPrefixes = []string{"modshim.", "mcp.", "http.", "url.", "server.", "error."}

// urlKeys carry module URLs. Credentials, query and fragment are removed
// from their values before export; import map targets can embed tokens.
var urlKeys = map[attribute.Key]bool{
	"modshim.url":          true,
	"modshim.parent":       true,
	"modshim.response_url": true,
	"modshim.target":       true,
	"url.full":             true,
}

// droppedKeys never leave the process even though their prefix is exported.
var droppedKeys = map[attribute.Key]bool{
	"modshim.source":     true,
	"modshim.import_map": true,
	"http.request.body":  true,
	"http.response.body": true,
}

func actionFor(key attribute.Key) attrAction {
	if key == "error" {
		return attrKeep
	}

	if droppedKeys[key] {
		return attrDrop
	}

	if urlKeys[key] {
		return attrScrubURL
	}

	for _, prefix := range exportedPrefixes {
		if strings.HasPrefix(string(key), prefix) {
			return attrKeep
		}
	}

	return attrDrop
}

// ScrubURL strips user info, query and fragment from an absolute URL.
// Values that do not parse as absolute URLs are returned unchanged.
func ScrubURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		return raw
	}

	if parsed.User == nil && parsed.RawQuery == "" && parsed.Fragment == "" && !parsed.ForceQuery {
		return raw
	}

	parsed.User = nil
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}

// attributeFilter wraps a SpanProcessor and rewrites the attribute set of
// every ended span.
type attributeFilter struct {
	sdktrace.SpanProcessor

	logger *slog.Logger
}

// NewAttributeFilter returns a SpanProcessor that only exports attributes in
// modshim's namespaces and scrubs URL-valued ones. A non-nil logger receives
// a warning per dropped key.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{SpanProcessor: delegate, logger: logger}
}

// OnEnd hands the delegate a view with the filtered attributes.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.SpanProcessor.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: f.filter(s.Attributes())})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.SpanProcessor.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.SpanProcessor.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) filter(in []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(in))

	for _, kv := range in {
		switch actionFor(kv.Key) {
		case attrKeep:
			out = append(out, kv)
		case attrScrubURL:
			if kv.Value.Type() == attribute.STRING {
				kv = kv.Key.String(ScrubURL(kv.Value.AsString()))
			}

			out = append(out, kv)
		case attrDrop:
			if f.logger != nil {
				f.logger.Warn("span attribute dropped", "key", string(kv.Key))
			}
		}
	}

	return out
}

type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
