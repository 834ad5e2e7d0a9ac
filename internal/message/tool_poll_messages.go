package message

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/tools"
)

func toolPollMessages(d tools.Deps, engine *msgsync.Engine, interval time.Duration) tools.Registration {
	const toolName = "discord_poll_messages"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Long-poll a Discord channel for messages newer than a cursor. Returns as soon as at least one arrives, or an empty result when the timeout elapses."),
		mcp.WithString("channel_id",
			mcp.Required(),
			mcp.Description("Channel ID to watch"),
		),
		mcp.WithString("after",
			mcp.Required(),
			mcp.Description("ID of the newest message already seen"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Seconds to wait for messages (default: 30, max: 300)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		timeout := time.Duration(req.GetInt("timeout_seconds", 0)) * time.Second
		if timeout <= 0 {
			timeout = defaultPollTimeout
		}
		if timeout > maxPollTimeout {
			timeout = maxPollTimeout
		}

		channelID := strings.TrimSpace(req.GetString("channel_id", ""))
		after := strings.TrimSpace(req.GetString("after", ""))
		params := map[string]any{
			"channel_id":      channelID,
			"after":           after,
			"timeout_seconds": int(timeout / time.Second),
		}

		conn, errResult := d.Connect(ctx, toolName, params, start)
		if errResult != nil {
			return errResult, nil
		}

		msgs, err := engine.WaitSince(ctx, conn, channelID, after, timeout, interval)
		if err != nil {
			return tools.AuditErrorResult(d.Audit, conn, toolName, params, err, start), nil
		}

		tools.LogAudit(d.Audit, conn, toolName, params, start, nil)
		if len(msgs) == 0 {
			return mcp.NewToolResultText("No new messages"), nil
		}
		return tools.JSONResult(msgs), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
