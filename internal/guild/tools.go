// Package guild provides MCP tool handlers for the guilds the bot belongs to.
package guild

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/guildview/internal/topology"
	"github.com/jamesprial/guildview/internal/tools"
)

// GuildTools returns all tool registrations for guild operations.
func GuildTools(d tools.Deps) []tools.Registration {
	d = d.WithDefaults()
	return []tools.Registration{
		toolListServers(d),
	}
}

func toolListServers(d tools.Deps) tools.Registration {
	const toolName = "discord_list_servers"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List every Discord server (guild) the bot is a member of, with icon and approximate member count."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		conn, errResult := d.Connect(ctx, toolName, params, start)
		if errResult != nil {
			return errResult, nil
		}

		guilds, err := topology.ListGuilds(ctx, conn)
		if err != nil {
			return tools.AuditErrorResult(d.Audit, conn, toolName, params, err, start), nil
		}

		d.Logger.Debug("listed servers", "count", len(guilds))
		tools.LogAudit(d.Audit, conn, toolName, params, start, nil)
		if len(guilds) == 0 {
			return mcp.NewToolResultText("The bot is not a member of any server"), nil
		}
		return tools.JSONResult(guilds), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
