// Package message provides MCP tool handlers for reading and sending channel
// messages through the message sync engine.
package message

import (
	"time"

	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/tools"
)

const (
	defaultPollTimeout = 30 * time.Second
	maxPollTimeout     = 300 * time.Second
)

// MessageTools returns all tool registrations for message operations.
// pollInterval is how often discord_poll_messages checks for new messages;
// a non-positive value uses msgsync.DefaultPollInterval.
func MessageTools(d tools.Deps, engine *msgsync.Engine, pollInterval time.Duration) []tools.Registration {
	d = d.WithDefaults()
	if pollInterval <= 0 {
		pollInterval = msgsync.DefaultPollInterval
	}
	return []tools.Registration{
		toolGetMessages(d, engine),
		toolPollMessages(d, engine, pollInterval),
		toolSendMessage(d, engine),
	}
}
