package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/auth"
	"github.com/jamesprial/guildview/internal/channel"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/guild"
	"github.com/jamesprial/guildview/internal/message"
	"github.com/jamesprial/guildview/internal/tools"
)

var mcpStdio bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the bot's servers as MCP tools",
	Long: `mcp serves MCP tools for the bot credential in discord.token (or
$GUILDVIEW_DISCORD_TOKEN). By default it speaks streamable HTTP on
server.port; --stdio serves over standard input and output instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx, os.Stderr)
		if err != nil {
			return err
		}
		if a.cfg.Discord.Token == "" {
			return errors.New("discord.token is required in mcp mode")
		}
		return runMCP(ctx, a, mcpStdio)
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpStdio, "stdio", false, "serve over stdin/stdout instead of HTTP")
}

// newMCPServer registers every tool against the configured credential.
func newMCPServer(a *app) *server.MCPServer {
	token := a.cfg.Discord.Token
	deps := tools.Deps{
		Conn: func(ctx context.Context) (*discord.Conn, error) {
			return a.registry.Connect(ctx, token)
		},
		Audit:  a.audit,
		Logger: a.logger,
	}

	s := server.NewMCPServer("guildview", Version, server.WithToolCapabilities(false))

	var registrations []tools.Registration
	registrations = append(registrations, guild.GuildTools(deps)...)
	registrations = append(registrations, channel.ChannelTools(deps)...)
	registrations = append(registrations, message.MessageTools(deps, a.engine, a.cfg.Sync.PollInterval())...)
	tools.RegisterAll(s, registrations)
	return s
}

func runMCP(ctx context.Context, a *app, stdio bool) error {
	s := newMCPServer(a)

	// Connect eagerly so a bad token fails at startup rather than on the
	// first tool call.
	if _, err := a.registry.Connect(ctx, a.cfg.Discord.Token); err != nil {
		a.shutdown(context.Background())
		return fmt.Errorf("connect: %s", apierr.Message(err, err.Error()))
	}

	if stdio {
		a.logger.Info("starting in stdio mode")
		errLog := log.New(os.Stderr, "guildview: ", log.LstdFlags)
		err := server.ServeStdio(s, server.WithErrorLogger(errLog))
		a.shutdown(context.Background())
		return err
	}

	cfg := a.cfg
	handler := auth.NewMiddleware(cfg.Server.AuthToken, a.logger)(server.NewStreamableHTTPServer(s))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSec) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("MCP listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown error", "error", err)
	}
	a.shutdown(shutdownCtx)

	if serveErr != nil {
		return fmt.Errorf("mcp server: %w", serveErr)
	}
	return nil
}
