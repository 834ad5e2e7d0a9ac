package discord_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/testutil"
)

// ---------------------------------------------------------------------------
// Dial
// ---------------------------------------------------------------------------

func Test_Dial_ValidCredential(t *testing.T) {
	md := testutil.NewMockDiscordSession(t)
	t.Cleanup(md.Close)

	conn, err := discord.Dial(context.Background(), testutil.MockToken, discord.DialOptions{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if conn.Self() == nil || conn.Self().ID != md.Self().ID {
		t.Errorf("Self() = %+v, want bot user %q", conn.Self(), md.Self().ID)
	}
	if conn.ConnectedAt().IsZero() {
		t.Error("ConnectedAt() is zero")
	}
	if conn.Fingerprint() != discord.Fingerprint(testutil.MockToken) {
		t.Errorf("Fingerprint() = %q, want %q", conn.Fingerprint(), discord.Fingerprint(testutil.MockToken))
	}
	if got := md.CountRequests("GET /api/v9/users/@me"); got != 1 {
		t.Errorf("handshake requests = %d, want 1", got)
	}
}

func Test_Dial_AcceptsBotPrefixedCredential(t *testing.T) {
	md := testutil.NewMockDiscordSession(t)
	t.Cleanup(md.Close)

	if _, err := discord.Dial(context.Background(), "Bot "+testutil.MockToken, discord.DialOptions{}); err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
}

func Test_Dial_InvalidCredential(t *testing.T) {
	md := testutil.NewMockDiscordSession(t)
	t.Cleanup(md.Close)

	_, err := discord.Dial(context.Background(), "wrong-token", discord.DialOptions{Timeout: 5 * time.Second})
	if err == nil {
		t.Fatal("Dial() with wrong token expected error, got nil")
	}
	if !errors.Is(err, apierr.ErrUnauthenticated) {
		t.Errorf("Dial() error kind = %q, want %q", apierr.KindOf(err), apierr.Unauthenticated)
	}
}

func Test_Dial_EmptyCredential(t *testing.T) {
	t.Parallel()

	for _, cred := range []string{"", "   "} {
		_, err := discord.Dial(context.Background(), cred, discord.DialOptions{})
		if !errors.Is(err, apierr.ErrInvalidInput) {
			t.Errorf("Dial(%q) error = %v, want InvalidInput", cred, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Conn
// ---------------------------------------------------------------------------

func Test_Conn_CloseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &testutil.MockDiscordClient{
		CloseFunc: func() error {
			calls++
			return errors.New("already gone")
		},
	}
	conn := testutil.NewConn(client)

	err1 := conn.Close()
	err2 := conn.Close()
	if calls != 1 {
		t.Errorf("client.Close called %d times, want 1", calls)
	}
	if err1 == nil || err1 != err2 {
		t.Errorf("Close() errors = %v, %v; want the same non-nil error twice", err1, err2)
	}
}

func Test_Conn_DoneClosedOnClose(t *testing.T) {
	t.Parallel()

	conn := testutil.NewConn(&testutil.MockDiscordClient{})
	if conn.Closed() {
		t.Fatal("Closed() = true before Close")
	}
	select {
	case <-conn.Done():
		t.Fatal("Done() closed before Close")
	default:
	}

	_ = conn.Close()

	if !conn.Closed() {
		t.Error("Closed() = false after Close")
	}
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Error("Done() not closed after Close")
	}
}

func Test_Fingerprint(t *testing.T) {
	t.Parallel()

	a := discord.Fingerprint("secret-token")
	b := discord.Fingerprint(" secret-token ")
	c := discord.Fingerprint("other-token")

	if a != b {
		t.Errorf("Fingerprint ignores surrounding space: %q != %q", a, b)
	}
	if a == c {
		t.Error("different credentials produced the same fingerprint")
	}
	if len(a) != 12 {
		t.Errorf("len(Fingerprint) = %d, want 12", len(a))
	}
	if strings.Contains(a, "secret") {
		t.Error("fingerprint leaks the credential")
	}
}

// ---------------------------------------------------------------------------
// Classify
// ---------------------------------------------------------------------------

func restError(status, code int) error {
	e := &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
	}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code, Message: "remote"}
	}
	return e
}

func Test_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want apierr.Kind
	}{
		{name: "missing access code", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), want: apierr.Forbidden},
		{name: "missing permissions code", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), want: apierr.Forbidden},
		{name: "bare 403", err: restError(http.StatusForbidden, 0), want: apierr.Forbidden},
		{name: "unknown channel", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel), want: apierr.NotFound},
		{name: "unknown guild", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownGuild), want: apierr.NotFound},
		{name: "bare 404", err: restError(http.StatusNotFound, 0), want: apierr.NotFound},
		{name: "401", err: restError(http.StatusUnauthorized, 0), want: apierr.Unauthenticated},
		{name: "429", err: restError(http.StatusTooManyRequests, 0), want: apierr.Transport},
		{name: "500", err: restError(http.StatusInternalServerError, 0), want: apierr.Transport},
		{name: "unauthorized sentinel", err: discordgo.ErrUnauthorized, want: apierr.Unauthenticated},
		{name: "context cancelled", err: fmt.Errorf("do: %w", context.Canceled), want: apierr.Transport},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: apierr.Transport},
		{name: "already classified", err: apierr.Invalid("x", "bad"), want: apierr.InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := discord.Classify("op", tt.err)
			if k := apierr.KindOf(got); k != tt.want {
				t.Errorf("Classify() kind = %q, want %q (err: %v)", k, tt.want, got)
			}
			if !errors.Is(got, tt.err) {
				t.Error("Classify() result does not wrap the original error")
			}
		})
	}

	if discord.Classify("op", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}
