package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
)

// ResolveOutput is the structured result of modshim_resolve.
type ResolveOutput struct {
	Specifier string `json:"specifier"`
	Parent    string `json:"parent"`
	URL       string `json:"url"`
}

// handleResolve processes modshim_resolve tool calls.
func handleResolve(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ResolveInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Specifier == "" {
		return errorResult(ErrEmptySpecifier)
	}

	parent := baseOrDefault(input.Parent)

	m, err := composeInline(input.ImportMap, parent, nil)
	if err != nil {
		return errorResult(err)
	}

	resolved, err := importmap.Resolve(input.Specifier, parent, m)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(ResolveOutput{Specifier: input.Specifier, Parent: parent, URL: resolved})
}

// composeInline parses doc and composes it onto an empty map at atURL. An
// empty doc yields an empty map.
func composeInline(doc, atURL string, logger *slog.Logger) (*importmap.ImportMap, error) {
	if doc == "" {
		return importmap.New(), nil
	}

	parsed, err := importmap.ParseDocument([]byte(doc))
	if err != nil {
		return nil, err
	}

	return importmap.Compose(importmap.New(), parsed, atURL, importmap.ComposeOptions{Logger: logger})
}
