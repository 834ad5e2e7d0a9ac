package testutil

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/discord"
)

// Compile-time assertion: *MockDiscordClient satisfies discord.DiscordClient.
var _ discord.DiscordClient = (*MockDiscordClient)(nil)

// MockDiscordClient implements discord.DiscordClient using configurable function
// fields. Each method delegates to its corresponding func field; when the field
// is nil the method returns a small, successful default.
type MockDiscordClient struct {
	UserFunc                      func(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserGuildsFunc                func(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error)
	GuildChannelsFunc             func(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelFunc                   func(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessagesFunc           func(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSendComplexFunc func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	CloseFunc                     func() error
}

func (m *MockDiscordClient) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	if m.UserFunc != nil {
		return m.UserFunc(userID, options...)
	}
	return &discordgo.User{ID: userID, Username: "mockuser"}, nil
}

func (m *MockDiscordClient) UserGuilds(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error) {
	if m.UserGuildsFunc != nil {
		return m.UserGuildsFunc(limit, beforeID, afterID, withCounts, options...)
	}
	if afterID != "" {
		return nil, nil
	}
	return []*discordgo.UserGuild{
		{ID: "guild-1", Name: "Test Guild", ApproximateMemberCount: 42},
	}, nil
}

func (m *MockDiscordClient) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	if m.GuildChannelsFunc != nil {
		return m.GuildChannelsFunc(guildID, options...)
	}
	return []*discordgo.Channel{
		{ID: "ch-001", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "ch-002", Name: "random", Type: discordgo.ChannelTypeGuildText},
	}, nil
}

func (m *MockDiscordClient) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if m.ChannelFunc != nil {
		return m.ChannelFunc(channelID, options...)
	}
	return &discordgo.Channel{ID: channelID, Name: "general", Type: discordgo.ChannelTypeGuildText}, nil
}

func (m *MockDiscordClient) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	if m.ChannelMessagesFunc != nil {
		return m.ChannelMessagesFunc(channelID, limit, beforeID, afterID, aroundID, options...)
	}
	if afterID != "" {
		return nil, nil
	}
	return []*discordgo.Message{
		{
			ID:        "mock-msg-001",
			ChannelID: channelID,
			Content:   "Hello from mock",
			Author:    &discordgo.User{ID: "user-001", Username: "mockuser"},
			Timestamp: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		},
	}, nil
}

func (m *MockDiscordClient) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.ChannelMessageSendComplexFunc != nil {
		return m.ChannelMessageSendComplexFunc(channelID, data, options...)
	}
	return &discordgo.Message{
		ID:        "mock-msg-002",
		ChannelID: channelID,
		Content:   data.Content,
		Timestamp: time.Date(2026, 1, 15, 10, 5, 0, 0, time.UTC),
	}, nil
}

func (m *MockDiscordClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// BotUser is the user NewConn attaches to mock connections.
var BotUser = &discordgo.User{ID: "bot-1", Username: "guildview-bot", Bot: true}

// NewConn wraps client in a discord.Conn as if the handshake had succeeded.
func NewConn(client discord.DiscordClient) *discord.Conn {
	return discord.NewConn(client, BotUser, "fp-test")
}
