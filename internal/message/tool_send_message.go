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

func toolSendMessage(d tools.Deps, engine *msgsync.Engine) tools.Registration {
	const toolName = "discord_send_message"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Send a plain-text message to a Discord channel. Mentions are not resolved."),
		mcp.WithString("channel_id",
			mcp.Required(),
			mcp.Description("Channel ID"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Message content (1-%d characters)", msgsync.MaxContentLength)),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		channelID := strings.TrimSpace(req.GetString("channel_id", ""))
		content := req.GetString("content", "")
		params := map[string]any{
			"channel_id": channelID,
			"length":     len(content),
		}

		conn, errResult := d.Connect(ctx, toolName, params, start)
		if errResult != nil {
			return errResult, nil
		}

		msg, err := engine.Send(ctx, conn, channelID, content)
		if err != nil {
			return tools.AuditErrorResult(d.Audit, conn, toolName, params, err, start), nil
		}

		tools.LogAudit(d.Audit, conn, toolName, params, start, nil)
		return mcp.NewToolResultText(fmt.Sprintf("Message sent (ID: %s)", msg.ID)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
