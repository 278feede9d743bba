package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
	"github.com/Sumatoshi-tech/modshim/pkg/report"
)

// handleScan processes modshim_scan tool calls.
func handleScan(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ScanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateSource("source", input.Source)
	if err != nil {
		return errorResult(err)
	}

	analysis, err := lexer.Scan(input.Source)
	if err != nil {
		return errorResult(fmt.Errorf("scan %s: %w", input.File, err))
	}

	return jsonResult(report.NewScan(input.File, input.Source, analysis))
}
