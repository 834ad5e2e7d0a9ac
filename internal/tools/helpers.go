// Package tools provides shared helper utilities for MCP tool handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/audit"
	"github.com/jamesprial/guildview/internal/discord"
)

// Registration pairs a tool definition with its handler.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// RegisterAll adds every registration to s.
func RegisterAll(s *server.MCPServer, regs []Registration) {
	for _, r := range regs {
		s.AddTool(r.Tool, r.Handler)
	}
}

// ConnFunc returns the connection tool calls run against. Implementations
// typically connect lazily through the registry and reuse the result.
type ConnFunc func(ctx context.Context) (*discord.Conn, error)

// Deps is what every tool package needs.
type Deps struct {
	Conn   ConnFunc
	Audit  audit.Sink
	Logger *slog.Logger
}

// WithDefaults returns d with a usable logger.
func (d Deps) WithDefaults() Deps {
	d.Logger = DefaultLogger(d.Logger)
	return d
}

// JSONResult marshals v to indented JSON and returns an mcp.CallToolResult.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns an mcp.CallToolResult that describes an error condition.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("error: %s", msg))
}

// ErrorMessage renders err for a tool result. Classified errors show their
// operator message; unclassified ones show the full chain.
func ErrorMessage(err error) string {
	return apierr.Message(err, err.Error())
}

// LogAudit records a tool invocation, silently ignoring a nil sink. The
// credential is recorded only as a fingerprint.
func LogAudit(sink audit.Sink, conn *discord.Conn, toolName string, params map[string]any, start time.Time, err error) {
	var fp string
	if conn != nil {
		fp = conn.Fingerprint()
	}
	audit.Record(sink, toolName, fp, "", params, start, err)
}

// AuditErrorResult audits the failure and returns an ErrorResult.
func AuditErrorResult(sink audit.Sink, conn *discord.Conn, toolName string, params map[string]any, err error, start time.Time) *mcp.CallToolResult {
	LogAudit(sink, conn, toolName, params, start, err)
	return ErrorResult(ErrorMessage(err))
}

// DefaultLogger returns l if non-nil, otherwise slog.Default().
func DefaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Connect resolves the connection for a tool call, auditing and converting
// a failure into an error result.
func (d Deps) Connect(ctx context.Context, toolName string, params map[string]any, start time.Time) (*discord.Conn, *mcp.CallToolResult) {
	if d.Conn == nil {
		err := apierr.E(apierr.NotConnected, "tools", "bot not connected", nil)
		return nil, AuditErrorResult(d.Audit, nil, toolName, params, err, start)
	}
	conn, err := d.Conn(ctx)
	if err != nil {
		return nil, AuditErrorResult(d.Audit, nil, toolName, params, err, start)
	}
	return conn, nil
}
