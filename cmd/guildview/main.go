// Command guildview serves a read-and-reply view of the Discord servers a bot
// belongs to, over a JSON/WebSocket facade or as MCP tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesprial/guildview/internal/audit"
	"github.com/jamesprial/guildview/internal/config"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/registry"
)

// Version information, injected at build time via ldflags.
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = "unknown"
)

const defaultConfigPath = "config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "guildview",
	Short: "Browse and reply to a Discord bot's servers",
	Long: `guildview connects to Discord with a bot credential and exposes the bot's
servers, channels and messages.

"guildview serve" runs the HTTP facade and live WebSocket stream used by the
web viewer. "guildview mcp" exposes the same operations as MCP tools for the
credential in discord.token.`,
	Version:       fmt.Sprintf("%s (build %s, %s)", Version, Build, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default $GUILDVIEW_CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wiring shared by both commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	audit    audit.Sink
	registry *registry.Registry
	engine   *msgsync.Engine
	closers  []io.Closer
}

// setup loads configuration and builds the logger, audit sinks, registry and
// engine. logOut receives structured logs; stdio MCP mode passes stderr so
// stdout stays reserved for the protocol.
func setup(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, source, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(logOut, cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("config loaded", "source", source, "version", Version)

	a := &app{cfg: cfg, logger: logger}
	a.audit = a.buildAudit(ctx)

	dial := func(ctx context.Context, credential string) (*discord.Conn, error) {
		return discord.Dial(ctx, credential, discord.DialOptions{
			Gateway: cfg.Discord.Gateway,
			Timeout: cfg.Discord.DialTimeout(),
		})
	}
	a.registry = registry.New(dial,
		registry.WithLogger(logger),
		registry.WithDialTimeout(cfg.Discord.DialTimeout()),
	)
	a.engine = msgsync.NewEngine(
		msgsync.WithLogger(logger),
		msgsync.WithLimits(cfg.Sync.DefaultLimit, cfg.Sync.MaxLimit),
	)
	return a, nil
}

// buildAudit opens the audit file and, when configured, the AMQP publisher.
// Either failing disables that sink with a warning rather than aborting.
func (a *app) buildAudit(ctx context.Context) audit.Sink {
	if !a.cfg.Audit.Enabled {
		return nil
	}

	var sinks audit.Multi
	if path := a.cfg.Audit.LogPath; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			a.logger.Warn("audit log disabled", "path", path, "error", err)
		} else {
			sinks = append(sinks, audit.NewLogger(f))
			a.closers = append(a.closers, f)
		}
	}

	if url := a.cfg.Audit.AMQP.URL; url != "" {
		pub, err := audit.DialPublisher(ctx, audit.PublisherOptions{
			URL:           url,
			Exchange:      a.cfg.Audit.AMQP.Exchange,
			RetryAttempts: 5,
			Delay:         time.Second,
			Logger:        a.logger,
		})
		if err != nil {
			a.logger.Warn("audit publishing disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
			a.closers = append(a.closers, pub)
		}
	}

	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// shutdown disconnects every bot and closes the audit sinks.
func (a *app) shutdown(ctx context.Context) {
	a.registry.CloseAll(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// loadConfig reads the config file named by path, $GUILDVIEW_CONFIG_PATH or
// the default. A missing default file falls back to DefaultConfig; an
// explicitly named file must exist.
func loadConfig(path string) (*config.Config, string, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("GUILDVIEW_CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load config %q: %w", path, err)
	}
	return config.DefaultConfig(), "defaults", nil
}

// newLogger builds the process logger from the logging section.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
