// Package httpapi is the JSON facade over the connection registry, topology
// resolver and message sync engine, plus a WebSocket stream that drives a
// live selection per viewer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jamesprial/guildview/internal/audit"
	"github.com/jamesprial/guildview/internal/auth"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/registry"
	"github.com/jamesprial/guildview/internal/selection"
	"github.com/jamesprial/guildview/internal/topology"
)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the logger. A nil logger leaves slog.Default() in place.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAudit sets the audit sink for connect, disconnect and send.
func WithAudit(sink audit.Sink) Option {
	return func(s *Server) { s.audit = sink }
}

// WithAuthToken enables operator bearer-token auth on every route except
// /healthz.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// WithPollInterval sets the cadence of stream sessions' polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxLogSize bounds each stream session's message log.
func WithMaxLogSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLogSize = n
		}
	}
}

// Server serves the facade. Build one with New and mount Handler.
type Server struct {
	registry     *registry.Registry
	engine       *msgsync.Engine
	audit        audit.Sink
	logger       *slog.Logger
	authToken    string
	pollInterval time.Duration
	maxLogSize   int

	listGuilds   func(ctx context.Context, conn *discord.Conn) ([]topology.Guild, error)
	listChannels selection.ChannelLister
}

// New returns a Server backed by reg and engine.
func New(reg *registry.Registry, engine *msgsync.Engine, opts ...Option) *Server {
	s := &Server{
		registry:     reg,
		engine:       engine,
		logger:       slog.Default(),
		pollInterval: msgsync.DefaultPollInterval,
		maxLogSize:   msgsync.DefaultMaxLogSize,
		listGuilds:   topology.ListGuilds,
		listChannels: topology.ListChannels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with request-id, recovery, access-log
// and auth middleware applied, outermost first.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/discord/connect", s.handleConnect)
	mux.HandleFunc("POST /api/discord/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/discord/servers", s.handleServers)
	mux.HandleFunc("POST /api/discord/channels", s.handleChannels)
	mux.HandleFunc("POST /api/discord/messages", s.handleMessages)
	mux.HandleFunc("POST /api/discord/send-message", s.handleSendMessage)
	mux.HandleFunc("GET /api/discord/stream", s.handleStream)

	var h http.Handler = mux
	h = auth.NewMiddleware(s.authToken, s.logger, "/healthz")(h)
	h = withAccessLog(s.logger, h)
	h = withRecovery(s.logger, h)
	h = withRequestID(h)
	return h
}

// newCoordinator builds the selection for one stream session.
func (s *Server) newCoordinator(conn *discord.Conn) *selection.Coordinator {
	return selection.New(conn, s.engine,
		selection.WithLogger(s.logger),
		selection.WithChannelLister(s.listChannels),
		selection.WithPollInterval(s.pollInterval),
		selection.WithMaxLogSize(s.maxLogSize),
	)
}
