package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/tools"
)

func toolGetMessages(d tools.Deps, engine *msgsync.Engine) tools.Registration {
	const toolName = "discord_get_messages"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Retrieve recent messages from a Discord channel, oldest first."),
		mcp.WithString("channel_id",
			mcp.Required(),
			mcp.Description("Channel ID, as returned by discord_list_channels"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of messages to retrieve (default: %d, max: %d)", msgsync.DefaultLimit, msgsync.MaxLimit)),
		),
		mcp.WithString("after",
			mcp.Description("Only return messages newer than this message ID (optional)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		channelID := strings.TrimSpace(req.GetString("channel_id", ""))
		limit := engine.ClampLimit(req.GetInt("limit", 0))
		after := strings.TrimSpace(req.GetString("after", ""))
		params := map[string]any{
			"channel_id": channelID,
			"limit":      limit,
			"after":      after,
		}

		conn, errResult := d.Connect(ctx, toolName, params, start)
		if errResult != nil {
			return errResult, nil
		}

		msgs, err := engine.Fetch(ctx, conn, channelID, limit, after)
		if err != nil {
			return tools.AuditErrorResult(d.Audit, conn, toolName, params, err, start), nil
		}

		tools.LogAudit(d.Audit, conn, toolName, params, start, nil)
		return tools.JSONResult(msgs), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
