package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/faucetdb/askdb/internal/askdb"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-blank string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// optionalBool returns nil when key is absent so callers can fall back to
// configured defaults.
func optionalBool(request mcp.CallToolRequest, key string) *bool {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	b := request.GetBool(key, false)
	return &b
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. The model sees the message
// and can self-correct; the MCP session stays open.
func toolError(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// askError renders a pipeline failure with the stage it happened in and
// the statement involved, so the agent can rephrase.
func askError(err error) (*mcp.CallToolResult, error) {
	var ae *askdb.Error
	if !errors.As(err, &ae) {
		return toolError("%v", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s during %s)", ae.Msg, ae.Kind, ae.Stage)
	if ae.SQL != "" {
		b.WriteString("\n\nSQL: ")
		b.WriteString(ae.SQL)
	}
	return mcp.NewToolResultError(b.String()), nil
}

// clamp constrains val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
