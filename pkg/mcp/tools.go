package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNameScan    = "modshim_scan"
	ToolNameResolve = "modshim_resolve"
	ToolNameGraph   = "modshim_graph"
)

// Input size limits.
const (
	// MaxSourceInputBytes is the maximum allowed size of one inline module (1 MB).
	MaxSourceInputBytes = 1 << 20

	// MaxGraphModules bounds the number of modules a graph call may carry.
	MaxGraphModules = 1024
)

// DefaultBaseURL is the parent URL used when a call names none.
const DefaultBaseURL = "file:///"

// Sentinel errors for tool input validation.
var (
	// ErrEmptySource indicates the source parameter is empty.
	ErrEmptySource = errors.New("source parameter is required and must not be empty")
	// ErrSourceTooLarge indicates an inline module exceeds the size limit.
	ErrSourceTooLarge = errors.New("source input exceeds maximum size")
	// ErrEmptySpecifier indicates the specifier parameter is empty.
	ErrEmptySpecifier = errors.New("specifier parameter is required and must not be empty")
	// ErrEmptyEntry indicates the entry parameter is empty.
	ErrEmptyEntry = errors.New("entry parameter is required and must not be empty")
	// ErrNoModules indicates a graph call without modules.
	ErrNoModules = errors.New("modules parameter is required and must not be empty")
	// ErrTooManyModules indicates a graph call over MaxGraphModules.
	ErrTooManyModules = errors.New("too many modules")
)

// ScanInput is the input schema for the modshim_scan tool.
type ScanInput struct {
	File   string `json:"file,omitempty" jsonschema:"optional file name echoed in the result"`
	Source string `json:"source"         jsonschema:"JavaScript module source to scan"`
}

// ResolveInput is the input schema for the modshim_resolve tool.
type ResolveInput struct {
	ImportMap string `json:"import_map,omitempty" jsonschema:"optional import map document as JSON"`
	Parent    string `json:"parent,omitempty"     jsonschema:"URL of the importing module (default: file:///)"`
	Specifier string `json:"specifier"            jsonschema:"module specifier to resolve"`
}

// GraphInput is the input schema for the modshim_graph tool.
type GraphInput struct {
	Entry     string            `json:"entry"                jsonschema:"entry specifier resolved against base_url"`
	BaseURL   string            `json:"base_url,omitempty"   jsonschema:"base URL of the entry (default: file:///)"`
	ImportMap string            `json:"import_map,omitempty" jsonschema:"optional import map document as JSON"`
	Modules   map[string]string `json:"modules"              jsonschema:"module sources keyed by absolute URL"`
	Skip      []string          `json:"skip,omitempty"       jsonschema:"optional URL globs that are referenced without loading"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func validateSource(name, source string) error {
	if source == "" {
		return ErrEmptySource
	}

	if len(source) > MaxSourceInputBytes {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrSourceTooLarge, name, len(source), MaxSourceInputBytes)
	}

	return nil
}

func baseOrDefault(u string) string {
	if u == "" {
		return DefaultBaseURL
	}

	return u
}
