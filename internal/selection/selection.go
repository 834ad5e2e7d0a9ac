// Package selection implements the guild -> channel selection cascade for one
// viewer: choosing a guild loads its channels, choosing a channel loads its
// history and starts polling, and every change clears the state below it.
package selection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/topology"
)

// Phase is the message sync state of the selected channel.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhasePolling Phase = "polling"
)

// ErrorState is the last failure shown to the viewer.
type ErrorState struct {
	Kind    apierr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// State is a point-in-time copy of a Coordinator's selection.
type State struct {
	Guild    *topology.Guild    `json:"guild,omitempty"`
	Channels []topology.Channel `json:"channels"`
	Channel  *topology.Channel  `json:"channel,omitempty"`
	Messages []msgsync.Message  `json:"messages"`
	Phase    Phase              `json:"phase"`
	Private  bool               `json:"private"`
	Error    *ErrorState        `json:"error,omitempty"`
}

// ChannelLister fetches a guild's channels. topology.ListChannels satisfies
// it.
type ChannelLister func(ctx context.Context, conn *discord.Conn, guildID string) ([]topology.Channel, error)

// MessageSource reads and writes channel messages. *msgsync.Engine
// satisfies it.
type MessageSource interface {
	LoadInitial(ctx context.Context, conn *discord.Conn, channelID string, limit int) ([]msgsync.Message, error)
	PollSince(ctx context.Context, conn *discord.Conn, channelID, afterID string) ([]msgsync.Message, error)
	Send(ctx context.Context, conn *discord.Conn, channelID, content string) (msgsync.Message, error)
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. A nil logger leaves slog.Default() in place.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChannelLister replaces topology.ListChannels.
func WithChannelLister(fn ChannelLister) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.listChannels = fn
		}
	}
}

// WithPollInterval sets the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxLogSize bounds the message log.
func WithMaxLogSize(n int) Option {
	return func(c *Coordinator) {
		c.log = msgsync.NewLog(msgsync.WithMaxSize(n))
	}
}

// Coordinator owns one viewer's selection state. Mutations are serialized;
// remote calls run without the lock held, and a response that arrives after
// the selection has moved on is discarded.
type Coordinator struct {
	conn         *discord.Conn
	source       MessageSource
	listChannels ChannelLister
	interval     time.Duration
	logger       *slog.Logger
	log          *msgsync.Log

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	guild    *topology.Guild
	channels []topology.Channel
	channel  *topology.Channel
	phase    Phase
	private  bool
	lastErr  *ErrorState
	poller   *msgsync.Poller
	closed   error
	notify   chan struct{}
}

// New returns an idle Coordinator bound to conn.
func New(conn *discord.Conn, source MessageSource, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		conn:         conn,
		source:       source,
		listChannels: topology.ListChannels,
		interval:     msgsync.DefaultPollInterval,
		logger:       slog.Default(),
		log:          msgsync.NewLog(),
		ctx:          ctx,
		cancel:       cancel,
		phase:        PhaseIdle,
		notify:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if conn != nil {
		go c.watch(conn.Done())
	}
	return c
}

// watch shuts the coordinator down when its connection is closed.
func (c *Coordinator) watch(done <-chan struct{}) {
	select {
	case <-done:
		c.shutdown(errDisconnected)
	case <-c.ctx.Done():
	}
}

// State returns a copy of the current selection.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Channels: append([]topology.Channel{}, c.channels...),
		Messages: c.log.Snapshot(),
		Phase:    c.phase,
		Private:  c.private,
	}
	if c.guild != nil {
		g := *c.guild
		s.Guild = &g
	}
	if c.channel != nil {
		ch := *c.channel
		s.Channel = &ch
	}
	if c.lastErr != nil {
		e := *c.lastErr
		s.Error = &e
	}
	return s
}

// Changed returns a channel that is closed on the next state change.
func (c *Coordinator) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify
}

// changed wakes watchers. The caller must hold c.mu.
func (c *Coordinator) changed() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// SelectGuild makes guild current, clears the channel and its messages, and
// loads the guild's readable channels.
func (c *Coordinator) SelectGuild(ctx context.Context, guild topology.Guild) error {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return c.closed
	}
	p := c.advance()
	c.guild = &guild
	c.channels = nil
	c.channel = nil
	c.private = false
	c.lastErr = nil
	c.phase = PhaseIdle
	gen := c.gen
	c.changed()
	c.mu.Unlock()
	stopPoller(p)

	channels, err := c.listChannels(ctx, c.conn, guild.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("discarding stale channel list", "guild", guild.ID)
		return nil
	}
	if err != nil {
		c.fail(err)
		c.changed()
		return err
	}
	c.channels = topology.Readable(channels)
	c.changed()
	return nil
}

// SelectChannel makes channel current, clears the message log and the last
// error, loads the channel's recent history and starts polling.
func (c *Coordinator) SelectChannel(ctx context.Context, channel topology.Channel) error {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return c.closed
	}
	p := c.advance()
	c.channel = &channel
	c.private = false
	c.lastErr = nil
	c.phase = PhaseLoading
	gen := c.gen
	c.changed()
	c.mu.Unlock()
	stopPoller(p)

	return c.load(ctx, gen, channel.ID)
}

// DeselectChannel returns to the channel list of the current guild.
func (c *Coordinator) DeselectChannel() {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	p := c.advance()
	c.channel = nil
	c.private = false
	c.lastErr = nil
	c.phase = PhaseIdle
	c.changed()
	c.mu.Unlock()
	stopPoller(p)
}

// Refresh retries after a failure: it reloads the selected channel, or the
// guild's channel list when no channel is selected.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	guild, channel, closed := c.guild, c.channel, c.closed
	c.mu.Unlock()

	switch {
	case closed != nil:
		return closed
	case channel != nil:
		return c.SelectChannel(ctx, *channel)
	case guild != nil:
		return c.SelectGuild(ctx, *guild)
	default:
		return nil
	}
}

// Send posts content to the selected channel and appends the result to the
// log without waiting for the next poll.
func (c *Coordinator) Send(ctx context.Context, content string) (msgsync.Message, error) {
	const op = "selection: send"

	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return msgsync.Message{}, c.closed
	}
	if c.channel == nil {
		c.mu.Unlock()
		return msgsync.Message{}, apierr.Invalid(op, "no channel selected")
	}
	channelID, gen := c.channel.ID, c.gen
	c.mu.Unlock()

	msg, err := c.source.Send(ctx, c.conn, channelID, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return msg, err
	}
	if err != nil {
		c.fail(err)
		c.changed()
		return msg, err
	}
	c.log.Merge(msg)
	c.lastErr = nil
	c.startPolling(gen, channelID)
	c.changed()
	return msg, nil
}

// Close stops polling and rejects further selections.
func (c *Coordinator) Close() {
	c.shutdown(errClosed)
}

// shutdown invalidates in-flight work and makes every later call fail with
// reason. A disconnect also clears the selection and shows the reason.
func (c *Coordinator) shutdown(reason error) {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = reason
	p := c.advance()
	if reason == errDisconnected {
		c.guild, c.channels, c.channel = nil, nil, nil
		c.private = false
		c.phase = PhaseIdle
		c.fail(reason)
		c.changed()
	}
	c.mu.Unlock()

	c.cancel()
	stopPoller(p)
}

func (c *Coordinator) load(ctx context.Context, gen uint64, channelID string) error {
	msgs, err := c.source.LoadInitial(ctx, c.conn, channelID, 0)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("discarding stale history", "channel", channelID)
		return nil
	}
	if err != nil {
		c.fail(err)
		c.phase = PhaseIdle
		c.changed()
		return err
	}

	c.log.Merge(msgs...)
	c.phase = PhaseReady
	c.startPolling(gen, channelID)
	c.changed()
	return nil
}

// startPolling begins polling once the log holds a cursor. The caller must
// hold c.mu.
func (c *Coordinator) startPolling(gen uint64, channelID string) {
	if c.poller != nil || c.log.Len() == 0 || c.closed != nil {
		return
	}
	c.phase = PhasePolling
	c.poller = msgsync.StartPoller(c.ctx, c.interval, func(ctx context.Context) {
		c.poll(ctx, gen, channelID)
	})
}

func (c *Coordinator) poll(ctx context.Context, gen uint64, channelID string) {
	c.mu.Lock()
	if c.gen != gen || c.phase != PhasePolling {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// The cursor is whatever the log ends with now, including sent messages.
	msgs, err := c.source.PollSince(ctx, c.conn, channelID, c.log.LastID())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || ctx.Err() != nil {
		return
	}
	if err != nil {
		// Polling pauses until the viewer retries or sends. This runs on
		// the poller's own goroutine, so it is cancelled, not stopped.
		if c.poller != nil {
			c.poller.Cancel()
			c.poller = nil
		}
		c.fail(err)
		c.phase = PhaseReady
		c.changed()
		return
	}
	if c.log.Merge(msgs...) > 0 {
		c.changed()
	}
}

// fail records err as the visible error. The caller must hold c.mu.
func (c *Coordinator) fail(err error) {
	kind := apierr.KindOf(err)
	c.lastErr = &ErrorState{Kind: kind, Message: apierr.Message(err, "request failed")}
	if kind == apierr.Forbidden {
		c.private = true
	}
	c.logger.Debug("selection error", "kind", kind, "error", err)
}

// advance invalidates in-flight work, clears the log and detaches the
// poller. The caller must hold c.mu and stop the returned poller after
// unlocking.
func (c *Coordinator) advance() *msgsync.Poller {
	c.gen++
	c.log.Reset()
	p := c.poller
	c.poller = nil
	return p
}

func stopPoller(p *msgsync.Poller) {
	if p != nil {
		p.Stop()
	}
}

var (
	errClosed       = apierr.E(apierr.InvalidInput, "selection", "selection closed", nil)
	errDisconnected = apierr.E(apierr.NotConnected, "selection", "bot not connected", nil)
)
