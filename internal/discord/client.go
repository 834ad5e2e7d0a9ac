package discord

import "github.com/bwmarrin/discordgo"

// DiscordClient defines the subset of the Discord API a connection uses:
// identity, guild and channel topology, and message read/send. The concrete
// *discordgo.Session type satisfies this interface.
type DiscordClient interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserGuilds(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Compile-time assertion: *discordgo.Session satisfies DiscordClient.
var _ DiscordClient = (*discordgo.Session)(nil)
