package msgsync

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/topology"
)

const (
	// DefaultLimit is the page size used when a caller passes no limit.
	DefaultLimit = 50
	// MaxLimit is the largest page Discord serves.
	MaxLimit = 100
	// MaxContentLength is Discord's message length limit, in characters.
	MaxContentLength = 2000
	// DefaultKindCacheSize bounds the channel kind cache.
	DefaultKindCacheSize = 4096
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger leaves slog.Default() in place.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLimits overrides the default and maximum page sizes. Values outside
// 1..MaxLimit are ignored.
func WithLimits(def, max int) Option {
	return func(e *Engine) {
		if max >= 1 && max <= MaxLimit {
			e.maxLimit = max
		}
		if def >= 1 && def <= e.maxLimit {
			e.defaultLimit = def
		}
	}
}

// WithKindCacheSize bounds how many channel kinds are remembered. A
// non-positive n leaves the default.
func WithKindCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxKinds = n
		}
	}
}

// Engine reads and writes channel messages through a connection. It keeps a
// small cache of channel kinds so polls do not refetch the channel each tick.
type Engine struct {
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger

	mu       sync.Mutex
	kinds    map[kindKey]topology.Kind
	maxKinds int
}

// kindKey scopes a cached channel kind to the credential that looked it up.
// A channel one bot can read may be unknown to another.
type kindKey struct {
	fingerprint string
	channelID   string
}

// NewEngine constructs an Engine with the provided options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		logger:       slog.Default(),
		kinds:        make(map[kindKey]topology.Kind),
		maxKinds:     DefaultKindCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClampLimit maps a requested page size onto 1..max, with values of zero or
// less meaning the default.
func (e *Engine) ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return e.defaultLimit
	case limit > e.maxLimit:
		return e.maxLimit
	default:
		return limit
	}
}

// LoadInitial fetches the most recent limit messages of channelID, oldest
// first. A channel the bot cannot read yields a Forbidden error with the
// message "channel is private".
func (e *Engine) LoadInitial(ctx context.Context, conn *discord.Conn, channelID string, limit int) ([]Message, error) {
	return e.Fetch(ctx, conn, channelID, limit, "")
}

// PollSince fetches messages strictly after the cursor afterID, oldest
// first. The result may be empty. Rate limiting is reported as a Transport
// error instead of being waited out.
func (e *Engine) PollSince(ctx context.Context, conn *discord.Conn, channelID, afterID string) ([]Message, error) {
	if strings.TrimSpace(afterID) == "" {
		return nil, apierr.Invalid("msgsync: poll", "cursor message ID is required")
	}
	return e.Fetch(ctx, conn, channelID, e.maxLimit, afterID)
}

// Fetch is the shared read path of LoadInitial and PollSince. An empty
// afterID fetches the newest page; otherwise only messages past afterID are
// returned.
func (e *Engine) Fetch(ctx context.Context, conn *discord.Conn, channelID string, limit int, afterID string) ([]Message, error) {
	const op = "msgsync: fetch"

	if conn == nil || conn.Closed() {
		return nil, apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, apierr.Invalid(op, "channel ID is required")
	}
	if err := e.checkChannel(ctx, conn, op, channelID); err != nil {
		return nil, err
	}

	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if afterID != "" {
		opts = append(opts, discordgo.WithRetryOnRatelimit(false))
	}

	start := time.Now()
	raw, err := conn.Client().ChannelMessages(channelID, e.ClampLimit(limit), "", afterID, "", opts...)
	if err != nil {
		return nil, e.readError(op, conn, channelID, err)
	}

	page := NewLog(WithMaxSize(len(raw) + 1))
	for _, m := range raw {
		page.Merge(FromDiscord(m, nil))
	}
	out := page.Snapshot()

	e.logger.Debug("messages fetched",
		"channel", channelID,
		"after", afterID,
		"count", len(out),
		"duration", time.Since(start),
	)
	return out, nil
}

// Send posts content to channelID and returns the created message. The
// connection's own user stands in for the author when Discord omits it.
func (e *Engine) Send(ctx context.Context, conn *discord.Conn, channelID, content string) (Message, error) {
	const op = "msgsync: send"

	if conn == nil || conn.Closed() {
		return Message{}, apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}
	if strings.TrimSpace(channelID) == "" {
		return Message{}, apierr.Invalid(op, "channel ID is required")
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, apierr.Invalid(op, "message content is required")
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return Message{}, apierr.Invalid(op, "message content exceeds 2000 characters")
	}
	if err := e.checkChannel(ctx, conn, op, channelID); err != nil {
		return Message{}, err
	}

	sent, err := conn.Client().ChannelMessageSendComplex(channelID,
		&discordgo.MessageSend{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return Message{}, e.readError(op, conn, channelID, err)
	}

	msg := FromDiscord(sent, conn.Self())
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	e.logger.Info("message sent", "channel", channelID, "message", msg.ID, "credential", conn.Fingerprint())
	return msg, nil
}

// checkChannel verifies that channelID carries messages. The kind is cached
// per credential after the first successful lookup.
func (e *Engine) checkChannel(ctx context.Context, conn *discord.Conn, op, channelID string) error {
	key := kindKey{fingerprint: conn.Fingerprint(), channelID: channelID}

	e.mu.Lock()
	kind, ok := e.kinds[key]
	e.mu.Unlock()

	if !ok {
		ch, err := conn.Client().Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return e.readError(op, conn, channelID, err)
		}
		kind = topology.KindOf(ch.Type)

		e.mu.Lock()
		if len(e.kinds) >= e.maxKinds {
			// Kinds are cheap to refetch; start over rather than track age.
			clear(e.kinds)
		}
		e.kinds[key] = kind
		e.mu.Unlock()
	}

	if !kind.HasMessages() {
		return apierr.E(apierr.NotFound, op, "text channel not found", nil)
	}
	return nil
}

func (e *Engine) readError(op string, conn *discord.Conn, channelID string, err error) error {
	err = discord.Classify(op, err)
	switch apierr.KindOf(err) {
	case apierr.Forbidden:
		return apierr.E(apierr.Forbidden, op, "channel is private", err)
	case apierr.NotFound:
		e.forget(kindKey{fingerprint: conn.Fingerprint(), channelID: channelID})
		return apierr.E(apierr.NotFound, op, "text channel not found", err)
	default:
		e.logger.Warn("discord request failed", "op", op, "channel", channelID, "error", err)
		return err
	}
}

func (e *Engine) forget(key kindKey) {
	e.mu.Lock()
	delete(e.kinds, key)
	e.mu.Unlock()
}

// WaitSince long-polls channelID: it calls PollSince every interval until at
// least one message past afterID arrives or timeout elapses. Timing out is
// not an error; it returns an empty slice.
func (e *Engine) WaitSince(ctx context.Context, conn *discord.Conn, channelID, afterID string, timeout, interval time.Duration) ([]Message, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msgs, err := e.PollSince(ctx, conn, channelID, afterID)
		switch {
		case err != nil && ctx.Err() != nil:
			return []Message{}, nil
		case err != nil:
			return nil, err
		case len(msgs) > 0:
			return msgs, nil
		}

		select {
		case <-ctx.Done():
			return []Message{}, nil
		case <-ticker.C:
		}
	}
}
