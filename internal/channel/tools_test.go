package channel_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/channel"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/testutil"
	"github.com/jamesprial/guildview/internal/tools"
	"github.com/jamesprial/guildview/internal/topology"
)

func depsFor(client *testutil.MockDiscordClient) tools.Deps {
	conn := testutil.NewConn(client)
	return tools.Deps{
		Conn:   func(context.Context) (*discord.Conn, error) { return conn, nil },
		Logger: testutil.DiscardLogger(),
	}
}

func Test_ChannelTools_Registration(t *testing.T) {
	t.Parallel()

	regs := channel.ChannelTools(depsFor(&testutil.MockDiscordClient{}))
	names := testutil.ToolNames(regs)
	if len(names) != 1 || names[0] != "discord_list_channels" {
		t.Errorf("ChannelTools() names = %v, want [discord_list_channels]", names)
	}
}

func Test_ListChannels_GroupsByCategory(t *testing.T) {
	t.Parallel()

	var gotGuild string
	client := &testutil.MockDiscordClient{
		GuildChannelsFunc: func(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
			gotGuild = guildID
			return []*discordgo.Channel{
				{ID: "10", Name: "welcome", Type: discordgo.ChannelTypeGuildText},
				{ID: "20", Name: "Games", Type: discordgo.ChannelTypeGuildCategory},
				{ID: "21", Name: "chess", Type: discordgo.ChannelTypeGuildText, ParentID: "20"},
				{ID: "22", Name: "thread", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "20"},
			}, nil
		},
	}
	handler := testutil.FindHandler(t, channel.ChannelTools(depsFor(client)), "discord_list_channels")

	result, err := handler(context.Background(), testutil.NewCallToolRequest("discord_list_channels", map[string]any{
		"guild_id": " 5 ",
	}))
	if err != nil {
		t.Fatalf("handler returned unexpected error: %v", err)
	}
	testutil.AssertNotError(t, result)
	if gotGuild != "5" {
		t.Errorf("guild ID passed = %q, want %q", gotGuild, "5")
	}

	var got channel.Listing
	if err := json.Unmarshal([]byte(testutil.ExtractText(t, result)), &got); err != nil {
		t.Fatalf("result is not a listing: %v", err)
	}
	if len(got.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(got.Groups))
	}
	if got.Groups[0].Category != nil || len(got.Groups[0].Channels) != 1 || got.Groups[0].Channels[0].ID != "10" {
		t.Errorf("uncategorised group = %+v", got.Groups[0])
	}
	second := got.Groups[1]
	if second.Category == nil || second.Category.ID != "20" {
		t.Fatalf("second group category = %+v", second.Category)
	}
	if len(second.Channels) != 1 || second.Channels[0].Kind != topology.KindText {
		t.Errorf("unknown kinds must be dropped, got %+v", second.Channels)
	}
}

func Test_ListChannels_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    map[string]any
		listErr error
		want    string
	}{
		{name: "missing guild", args: map[string]any{}, want: "error: guild_id is required"},
		{name: "blank guild", args: map[string]any{"guild_id": "  "}, want: "error: guild_id is required"},
		{
			name:    "unknown guild",
			args:    map[string]any{"guild_id": "404"},
			listErr: apierr.E(apierr.NotFound, "discord", "not found", nil),
			want:    "error: server not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &testutil.MockDiscordClient{
				GuildChannelsFunc: func(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
					return nil, tt.listErr
				},
			}
			handler := testutil.FindHandler(t, channel.ChannelTools(depsFor(client)), "discord_list_channels")
			result, err := handler(context.Background(), testutil.NewCallToolRequest("discord_list_channels", tt.args))
			if err != nil {
				t.Fatalf("handler returned unexpected error: %v", err)
			}
			if !result.IsError {
				t.Error("expected an error result")
			}
			if got := testutil.ExtractText(t, result); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}
