// Package discord owns a single authenticated session to Discord: the
// handshake that validates a bot credential, the REST client used for
// topology and message calls, and the mapping of remote failures onto the
// apierr taxonomy.
package discord

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
)

// DefaultIntents are requested when the gateway is opened.
const DefaultIntents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentGuildMembers

// Conn is one authenticated session for one credential. It is safe for
// concurrent use.
type Conn struct {
	client      DiscordClient
	self        *discordgo.User
	connectedAt time.Time
	fingerprint string

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewConn wraps an already-authenticated client. self is the bot user the
// credential belongs to and may be nil when unknown.
func NewConn(client DiscordClient, self *discordgo.User, fingerprint string) *Conn {
	return &Conn{
		client:      client,
		self:        self,
		connectedAt: time.Now(),
		fingerprint: fingerprint,
		done:        make(chan struct{}),
	}
}

// Client returns the REST client backing this connection.
func (c *Conn) Client() DiscordClient { return c.client }

// Self returns the bot user, or nil if the handshake did not report one.
func (c *Conn) Self() *discordgo.User { return c.self }

// ConnectedAt reports when the handshake completed.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// Fingerprint identifies the credential in logs without revealing it.
func (c *Conn) Fingerprint() string { return c.fingerprint }

// Done is closed when the connection is closed. Holders of a Conn select on
// it to stop using the credential after a disconnect.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close terminates the remote session. Repeated calls return the first
// result without touching the remote again.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

// DialOptions control how Dial establishes a session.
type DialOptions struct {
	// Gateway opens the websocket gateway after the REST handshake.
	Gateway bool
	// Intents requested on the gateway. Zero means DefaultIntents.
	Intents discordgo.Intent
	// Timeout bounds the handshake. Zero means no extra bound beyond ctx.
	Timeout time.Duration
}

// Dial authenticates credential against Discord. The handshake fetches the
// bot's own user; any handshake failure other than cancellation is reported
// as apierr.Unauthenticated.
func Dial(ctx context.Context, credential string, opts DialOptions) (*Conn, error) {
	const op = "discord: dial"

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, apierr.Invalid(op, "credential is required")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	token := credential
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	dg, err := discordgo.New(token)
	if err != nil {
		return nil, apierr.E(apierr.Unauthenticated, op, "invalid bot token or connection failed", err)
	}

	self, err := dg.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apierr.E(apierr.Transport, op, "handshake timed out", err)
		}
		return nil, apierr.E(apierr.Unauthenticated, op, "invalid bot token or connection failed", err)
	}

	if opts.Gateway {
		intents := opts.Intents
		if intents == 0 {
			intents = DefaultIntents
		}
		dg.Identify.Intents = intents
		if err := openGateway(ctx, dg); err != nil {
			if ctx.Err() != nil {
				return nil, apierr.E(apierr.Transport, op, "handshake timed out", err)
			}
			return nil, apierr.E(apierr.Unauthenticated, op, "invalid bot token or connection failed", err)
		}
	}

	return NewConn(dg, self, Fingerprint(credential)), nil
}

// gateway is the part of *discordgo.Session that Dial opens.
type gateway interface {
	Open() error
	Close() error
}

// openGateway opens g and closes it again if the open fails or ctx expired
// while it ran, so a failed dial leaves no websocket behind. Open itself
// takes no context.
func openGateway(ctx context.Context, g gateway) error {
	if err := g.Open(); err != nil {
		_ = g.Close()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = g.Close()
		return err
	}
	return nil
}

// Fingerprint returns a short, stable, non-reversible identifier for a
// credential, suitable for logs and audit records.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(credential)))
	return hex.EncodeToString(sum[:])[:12]
}
