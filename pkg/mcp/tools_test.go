package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/modshim/pkg/report"
)

func resultText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestHandleScan(t *testing.T) {
	t.Parallel()

	result, out, err := handleScan(context.Background(), &mcpsdk.CallToolRequest{}, ScanInput{
		File:   "main.js",
		Source: `import { a } from "./a.js"; export const b = a;`,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	scan, ok := out.Data.(report.Scan)
	require.True(t, ok)
	assert.Equal(t, []string{"./a.js"}, scan.Specifiers)
	assert.Equal(t, []string{"b"}, scan.Exports)
	assert.Contains(t, resultText(t, result), `"file": "main.js"`)
}

func TestHandleScan_Errors(t *testing.T) {
	t.Parallel()

	result, _, err := handleScan(context.Background(), &mcpsdk.CallToolRequest{}, ScanInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "source parameter is required")

	result, _, err = handleScan(context.Background(), &mcpsdk.CallToolRequest{}, ScanInput{
		Source: strings.Repeat("a", MaxSourceInputBytes+1),
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "exceeds maximum size")

	result, _, err = handleScan(context.Background(), &mcpsdk.CallToolRequest{}, ScanInput{Source: `const s = "abc`})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input ResolveInput
		want  string
	}{
		{
			name:  "relative against parent",
			input: ResolveInput{Specifier: "../b.js", Parent: "https://h/x/a.js"},
			want:  "https://h/b.js",
		},
		{
			name:  "relative against default base",
			input: ResolveInput{Specifier: "./b.js"},
			want:  "file:///b.js",
		},
		{
			name: "bare through import map",
			input: ResolveInput{
				Specifier: "lodash",
				Parent:    "https://h/app.js",
				ImportMap: `{"imports": {"lodash": "/vendor/lodash.js"}}`,
			},
			want: "https://h/vendor/lodash.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, out, err := handleResolve(context.Background(), &mcpsdk.CallToolRequest{}, tt.input)
			require.NoError(t, err)
			require.False(t, result.IsError, resultText(t, result))

			resolved, ok := out.Data.(ResolveOutput)
			require.True(t, ok)
			assert.Equal(t, tt.want, resolved.URL)
		})
	}
}

func TestHandleResolve_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   ResolveInput
		message string
	}{
		{"empty specifier", ResolveInput{}, "specifier parameter is required"},
		{"unmapped bare", ResolveInput{Specifier: "lodash", Parent: "https://h/a.js"}, "lodash"},
		{"blocked", ResolveInput{
			Specifier: "lodash",
			Parent:    "https://h/a.js",
			ImportMap: `{"imports": {"lodash": null}}`,
		}, "lodash"},
		{"bad document", ResolveInput{Specifier: "x", ImportMap: `{"imports": 3}`}, "invalid import map document"},
		{"parent without scheme", ResolveInput{Specifier: "/a.js", Parent: "foo"}, "/a.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, _, err := handleResolve(context.Background(), &mcpsdk.CallToolRequest{}, tt.input)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.message)
		})
	}
}

func TestGraphTool_Cycle(t *testing.T) {
	t.Parallel()

	g := graphTool{}

	result, out, err := g.handle(context.Background(), &mcpsdk.CallToolRequest{}, GraphInput{
		Entry:   "./a.js",
		BaseURL: "https://h/",
		Modules: map[string]string{
			"https://h/a.js": `import "./b.js"; export const a = 1;`,
			"https://h/b.js": `import "./a.js"; export const b = 2;`,
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	graph, ok := out.Data.(report.Graph)
	require.True(t, ok)
	assert.Equal(t, "https://h/a.js", graph.Root)
	assert.Len(t, graph.Modules, 2)
	assert.Equal(t, []string{"https://h/a.js", "https://h/b.js"}, graph.Cycle)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, "https://h/a.js", decoded["root"])
}

func TestGraphTool_SkipAndImportMap(t *testing.T) {
	t.Parallel()

	g := graphTool{}

	result, out, err := g.handle(context.Background(), &mcpsdk.CallToolRequest{}, GraphInput{
		Entry:     "./main.js",
		BaseURL:   "https://h/",
		ImportMap: `{"imports": {"react": "https://cdn.example/react.js"}}`,
		Skip:      []string{"https://cdn.example/**"},
		Modules: map[string]string{
			"https://h/main.js": `import React from "react"; export default React;`,
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	graph, ok := out.Data.(report.Graph)
	require.True(t, ok)
	require.Len(t, graph.Modules, 2)

	var skipped []string

	for _, node := range graph.Modules {
		if node.Skipped {
			skipped = append(skipped, node.URL)
		}
	}

	assert.Equal(t, []string{"https://cdn.example/react.js"}, skipped)
}

func TestGraphTool_Errors(t *testing.T) {
	t.Parallel()

	g := graphTool{}

	tests := []struct {
		name    string
		input   GraphInput
		message string
	}{
		{"no entry", GraphInput{Modules: map[string]string{"https://h/a.js": "x"}}, "entry parameter is required"},
		{"no modules", GraphInput{Entry: "./a.js"}, "modules parameter is required"},
		{"missing module", GraphInput{
			Entry:   "./a.js",
			BaseURL: "https://h/",
			Modules: map[string]string{"https://h/a.js": `import "./missing.js";`},
		}, "https://h/missing.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, _, err := g.handle(context.Background(), &mcpsdk.CallToolRequest{}, tt.input)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.message)
		})
	}
}
