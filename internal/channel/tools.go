// Package channel provides MCP tool handlers for guild channel listings.
package channel

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/topology"
	"github.com/jamesprial/guildview/internal/tools"
)

// Listing is the response shape of discord_list_channels.
type Listing struct {
	GuildID string           `json:"guild_id"`
	Groups  []topology.Group `json:"groups"`
}

// ChannelTools returns all tool registrations for channel operations.
func ChannelTools(d tools.Deps) []tools.Registration {
	d = d.WithDefaults()
	return []tools.Registration{
		toolListChannels(d),
	}
}

func toolListChannels(d tools.Deps) tools.Registration {
	const toolName = "discord_list_channels"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List the channels of a Discord server grouped under their categories. Only text, announcement, voice and stage channels carry readable messages."),
		mcp.WithString("guild_id",
			mcp.Required(),
			mcp.Description("Server (guild) ID, as returned by discord_list_servers"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		guildID := strings.TrimSpace(req.GetString("guild_id", ""))
		params := map[string]any{"guild_id": guildID}

		if guildID == "" {
			err := apierr.Invalid("channel: list", "guild_id is required")
			return tools.AuditErrorResult(d.Audit, nil, toolName, params, err, start), nil
		}

		conn, errResult := d.Connect(ctx, toolName, params, start)
		if errResult != nil {
			return errResult, nil
		}

		channels, err := topology.ListChannels(ctx, conn, guildID)
		if err != nil {
			return tools.AuditErrorResult(d.Audit, conn, toolName, params, err, start), nil
		}
		readable := topology.Readable(channels)

		d.Logger.Debug("listed channels", "guildID", guildID, "count", len(readable))
		tools.LogAudit(d.Audit, conn, toolName, params, start, nil)
		return tools.JSONResult(Listing{GuildID: guildID, Groups: topology.GroupByCategory(readable)}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
