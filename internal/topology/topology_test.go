package topology_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/testutil"
	"github.com/jamesprial/guildview/internal/topology"
)

// ---------------------------------------------------------------------------
// KindOf
// ---------------------------------------------------------------------------

func Test_KindOf_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code discordgo.ChannelType
		want topology.Kind
	}{
		{0, topology.KindText},
		{2, topology.KindVoice},
		{4, topology.KindCategory},
		{5, topology.KindAnnouncement},
		{13, topology.KindStage},
		{15, topology.KindForum},
		{1, topology.KindUnknown},
		{11, topology.KindUnknown},
		{99, topology.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			t.Parallel()
			if got := topology.KindOf(tt.code); got != tt.want {
				t.Errorf("KindOf(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func Test_Kind_HasMessages(t *testing.T) {
	t.Parallel()

	for _, k := range []topology.Kind{topology.KindText, topology.KindAnnouncement, topology.KindVoice, topology.KindStage} {
		if !k.HasMessages() {
			t.Errorf("%q.HasMessages() = false, want true", k)
		}
	}
	for _, k := range []topology.Kind{topology.KindCategory, topology.KindForum, topology.KindUnknown} {
		if k.HasMessages() {
			t.Errorf("%q.HasMessages() = true, want false", k)
		}
	}
}

// ---------------------------------------------------------------------------
// ListGuilds
// ---------------------------------------------------------------------------

func Test_ListGuilds_Normalizes(t *testing.T) {
	t.Parallel()

	client := &testutil.MockDiscordClient{
		UserGuildsFunc: func(limit int, before, after string, withCounts bool, _ ...discordgo.RequestOption) ([]*discordgo.UserGuild, error) {
			if !withCounts {
				t.Error("UserGuilds called without counts")
			}
			if after != "" {
				return nil, nil
			}
			return []*discordgo.UserGuild{
				{ID: "1", Name: "Alpha", Icon: "abc", ApproximateMemberCount: 7},
				{ID: "2", Name: "", ApproximateMemberCount: 3},
				{ID: "3", Name: "Gifs", Icon: "a_def"},
			}, nil
		},
	}

	got, err := topology.ListGuilds(context.Background(), testutil.NewConn(client))
	if err != nil {
		t.Fatalf("ListGuilds: %v", err)
	}

	want := []topology.Guild{
		{ID: "1", Name: "Alpha", IconURL: discordgo.EndpointGuildIcon("1", "abc"), MemberCount: 7},
		{ID: "2", Name: topology.UnknownGuildName, MemberCount: 3},
		{ID: "3", Name: "Gifs", IconURL: discordgo.EndpointGuildIconAnimated("3", "a_def")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListGuilds mismatch (-want +got):\n%s", diff)
	}
}

func Test_ListGuilds_FollowsPages(t *testing.T) {
	t.Parallel()

	var afters []string
	client := &testutil.MockDiscordClient{
		UserGuildsFunc: func(limit int, before, after string, _ bool, _ ...discordgo.RequestOption) ([]*discordgo.UserGuild, error) {
			afters = append(afters, after)
			if after != "" {
				return []*discordgo.UserGuild{{ID: "last", Name: "Last"}}, nil
			}
			page := make([]*discordgo.UserGuild, limit)
			for i := range page {
				page[i] = &discordgo.UserGuild{ID: fmt.Sprintf("g%03d", i), Name: "G"}
			}
			return page, nil
		},
	}

	got, err := topology.ListGuilds(context.Background(), testutil.NewConn(client))
	if err != nil {
		t.Fatalf("ListGuilds: %v", err)
	}
	if len(got) != 201 {
		t.Fatalf("len = %d, want 201", len(got))
	}
	if diff := cmp.Diff([]string{"", "g199"}, afters); diff != "" {
		t.Errorf("page cursors mismatch (-want +got):\n%s", diff)
	}
}

func Test_ListGuilds_EmptyIsNonNil(t *testing.T) {
	t.Parallel()

	client := &testutil.MockDiscordClient{
		UserGuildsFunc: func(int, string, string, bool, ...discordgo.RequestOption) ([]*discordgo.UserGuild, error) {
			return nil, nil
		},
	}
	got, err := topology.ListGuilds(context.Background(), testutil.NewConn(client))
	if err != nil {
		t.Fatalf("ListGuilds: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListGuilds = %#v, want empty non-nil slice", got)
	}
}

func Test_ListGuilds_NilConn(t *testing.T) {
	t.Parallel()

	_, err := topology.ListGuilds(context.Background(), nil)
	if apierr.KindOf(err) != apierr.NotConnected {
		t.Errorf("ListGuilds(nil) kind = %q, want %q", apierr.KindOf(err), apierr.NotConnected)
	}
}

// ---------------------------------------------------------------------------
// ListChannels
// ---------------------------------------------------------------------------

func Test_ListChannels_ClassifiesInRemoteOrder(t *testing.T) {
	t.Parallel()

	client := &testutil.MockDiscordClient{
		GuildChannelsFunc: func(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
			return []*discordgo.Channel{
				{ID: "c1", Name: "General", Type: discordgo.ChannelTypeGuildCategory},
				{ID: "t1", Name: "chat", Type: discordgo.ChannelTypeGuildText, ParentID: "c1"},
				{ID: "x1", Name: "thread", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "t1"},
				{ID: "f1", Name: "help", Type: discordgo.ChannelTypeGuildForum},
			}, nil
		},
	}

	got, err := topology.ListChannels(context.Background(), testutil.NewConn(client), "g1")
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}

	want := []topology.Channel{
		{ID: "c1", Name: "General", Kind: topology.KindCategory},
		{ID: "t1", Name: "chat", Kind: topology.KindText, ParentID: "c1"},
		{ID: "x1", Name: "thread", Kind: topology.KindUnknown, ParentID: "t1"},
		{ID: "f1", Name: "help", Kind: topology.KindForum},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListChannels mismatch (-want +got):\n%s", diff)
	}

	readable := topology.Readable(got)
	if len(readable) != 3 {
		t.Errorf("Readable len = %d, want 3", len(readable))
	}
	for _, ch := range readable {
		if ch.Kind == topology.KindUnknown {
			t.Errorf("Readable kept unknown channel %q", ch.ID)
		}
	}
}

func Test_ListChannels_Errors(t *testing.T) {
	t.Parallel()

	restErr := func(status int) error {
		return &discordgo.RESTError{
			Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		}
	}

	tests := []struct {
		name     string
		guildID  string
		remote   error
		wantKind apierr.Kind
	}{
		{name: "blank guild id", guildID: "  ", wantKind: apierr.InvalidInput},
		{name: "unknown guild", guildID: "g", remote: restErr(http.StatusNotFound), wantKind: apierr.NotFound},
		{name: "guild not visible", guildID: "g", remote: restErr(http.StatusForbidden), wantKind: apierr.NotFound},
		{name: "server error", guildID: "g", remote: restErr(http.StatusBadGateway), wantKind: apierr.Transport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			client := &testutil.MockDiscordClient{
				GuildChannelsFunc: func(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
					calls++
					return nil, tt.remote
				},
			}
			got, err := topology.ListChannels(context.Background(), testutil.NewConn(client), tt.guildID)
			if got != nil {
				t.Errorf("ListChannels returned partial result %#v", got)
			}
			if k := apierr.KindOf(err); k != tt.wantKind {
				t.Errorf("kind = %q, want %q (err %v)", k, tt.wantKind, err)
			}
			if tt.remote == nil && calls != 0 {
				t.Errorf("remote called %d times for invalid input", calls)
			}
		})
	}
}

func Test_ListChannels_AgainstMockDiscord(t *testing.T) {
	md := testutil.NewMockDiscordSession(t)
	t.Cleanup(md.Close)

	md.AddGuild(&discordgo.UserGuild{ID: "100", Name: "Guild"})
	md.AddChannel("100", &discordgo.Channel{ID: "200", Name: "Text", Type: discordgo.ChannelTypeGuildCategory})
	md.AddChannel("100", &discordgo.Channel{ID: "201", Name: "general", Type: discordgo.ChannelTypeGuildText, ParentID: "200"})

	conn := testutil.NewConn(md.Session)

	got, err := topology.ListChannels(context.Background(), conn, "100")
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(got) != 2 || got[1].Kind != topology.KindText || got[1].ParentID != "200" {
		t.Errorf("ListChannels = %#v", got)
	}

	before := md.CountRequests("GET /api/v9/guilds/100/channels")
	if _, err := topology.ListChannels(context.Background(), conn, "100"); err != nil {
		t.Fatalf("second ListChannels: %v", err)
	}
	if after := md.CountRequests("GET /api/v9/guilds/100/channels"); after != before+1 {
		t.Errorf("second call did not reach Discord: requests %d -> %d", before, after)
	}

	_, err = topology.ListChannels(context.Background(), conn, "999")
	if apierr.KindOf(err) != apierr.NotFound {
		t.Errorf("unknown guild kind = %q, want not_found", apierr.KindOf(err))
	}
	if !strings.Contains(apierr.Message(err, ""), "not found") {
		t.Errorf("unknown guild message = %q", apierr.Message(err, ""))
	}
}
