// Package topology lists the guilds a connection can see and normalizes a
// guild's channels into the kinds the UI understands.
package topology

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/discord"
)

// UnknownGuildName replaces empty guild names.
const UnknownGuildName = "Unknown Server"

// guildPageSize is the largest page Discord serves for the bot's guild list.
const guildPageSize = 200

// Guild is a read-only snapshot of a guild the bot belongs to.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IconURL     string `json:"iconUrl,omitempty"`
	MemberCount int    `json:"memberCount"`
}

// Channel is a guild channel classified into a Kind. ParentID is set only
// for channels nested under a category.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	ParentID string `json:"parentId,omitempty"`
}

// ListGuilds returns every guild visible to conn, fetched fresh on each call.
// Pages are followed until Discord returns a short page.
func ListGuilds(ctx context.Context, conn *discord.Conn) ([]Guild, error) {
	const op = "topology: list guilds"

	if conn == nil {
		return nil, apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}

	var out []Guild
	after := ""
	for {
		page, err := conn.Client().UserGuilds(guildPageSize, "", after, true, discordgo.WithContext(ctx))
		if err != nil {
			return nil, discord.Classify(op, err)
		}
		for _, g := range page {
			out = append(out, toGuild(g))
		}
		if len(page) < guildPageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	if out == nil {
		out = []Guild{}
	}
	return out, nil
}

func toGuild(g *discordgo.UserGuild) Guild {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		name = UnknownGuildName
	}
	return Guild{
		ID:          g.ID,
		Name:        name,
		IconURL:     iconURL(g.ID, g.Icon),
		MemberCount: g.ApproximateMemberCount,
	}
}

func iconURL(guildID, hash string) string {
	switch {
	case hash == "":
		return ""
	case strings.HasPrefix(hash, "a_"):
		return discordgo.EndpointGuildIconAnimated(guildID, hash)
	default:
		return discordgo.EndpointGuildIcon(guildID, hash)
	}
}

// ListChannels fetches guildID's channels from Discord, bypassing any local
// state, and classifies each one. Remote order is preserved. Channels of an
// unrecognized type are returned with KindUnknown; use Readable to drop
// them. A guild that does not exist or that the bot cannot see is NotFound;
// no partial result is returned on failure.
func ListChannels(ctx context.Context, conn *discord.Conn, guildID string) ([]Channel, error) {
	const op = "topology: list channels"

	if conn == nil {
		return nil, apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}
	if strings.TrimSpace(guildID) == "" {
		return nil, apierr.Invalid(op, "server ID is required")
	}

	raw, err := conn.Client().GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		err = discord.Classify(op, err)
		if k := apierr.KindOf(err); k == apierr.NotFound || k == apierr.Forbidden {
			return nil, apierr.E(apierr.NotFound, op, "server not found", err)
		}
		return nil, err
	}

	out := make([]Channel, 0, len(raw))
	for _, ch := range raw {
		out = append(out, FromDiscord(ch))
	}
	return out, nil
}

// FromDiscord converts a discordgo channel into a Channel.
func FromDiscord(ch *discordgo.Channel) Channel {
	return Channel{
		ID:       ch.ID,
		Name:     ch.Name,
		Kind:     KindOf(ch.Type),
		ParentID: ch.ParentID,
	}
}

// Readable drops channels of KindUnknown, keeping order.
func Readable(channels []Channel) []Channel {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Kind != KindUnknown {
			out = append(out, ch)
		}
	}
	return out
}
