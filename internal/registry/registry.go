// Package registry keeps the process-wide set of live Discord connections,
// at most one per credential.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/discord"
)

// DialFunc performs the remote handshake for a credential.
type DialFunc func(ctx context.Context, credential string) (*discord.Conn, error)

// Option is a functional option for configuring a Registry.
type Option func(*Registry)

// WithLogger sets the logger. A nil logger leaves slog.Default() in place.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDialTimeout bounds each handshake. Values of zero or less disable the
// bound.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.dialTimeout = d
	}
}

// Registry maps credentials to connections. Concurrent Connect calls for the
// same credential share one handshake. It is safe for concurrent use.
type Registry struct {
	dial        DialFunc
	dialTimeout time.Duration
	logger      *slog.Logger

	mu    sync.RWMutex
	conns map[string]*discord.Conn

	group singleflight.Group
}

// New constructs an empty Registry that uses dial for new credentials.
func New(dial DialFunc, opts ...Option) *Registry {
	r := &Registry{
		dial:   dial,
		logger: slog.Default(),
		conns:  make(map[string]*discord.Conn),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect returns the connection for credential, dialing it if none exists.
// A registered connection is returned unchanged. While a handshake is in
// flight, other callers for the same credential wait for its result instead
// of starting their own; the handshake is not cancelled when the caller that
// started it gives up. A failed handshake registers nothing.
func (r *Registry) Connect(ctx context.Context, credential string) (*discord.Conn, error) {
	const op = "registry: connect"

	if strings.TrimSpace(credential) == "" {
		return nil, apierr.Invalid(op, "bot token is required")
	}
	if conn, ok := r.Get(credential); ok {
		return conn, nil
	}

	ch := r.group.DoChan(credential, func() (any, error) {
		if conn, ok := r.Get(credential); ok {
			return conn, nil
		}

		dctx := context.WithoutCancel(ctx)
		if r.dialTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, r.dialTimeout)
			defer cancel()
		}

		conn, err := r.dial(dctx, credential)
		if err != nil {
			r.logger.Warn("connect failed", "credential", discord.Fingerprint(credential), "error", err)
			return nil, err
		}

		r.mu.Lock()
		r.conns[credential] = conn
		r.mu.Unlock()

		r.logger.Info("connected", "credential", conn.Fingerprint(), "bot", botName(conn))
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*discord.Conn), nil
	case <-ctx.Done():
		return nil, apierr.E(apierr.Transport, op, "connect cancelled", ctx.Err())
	}
}

// Get returns the registered connection for credential without side effects.
func (r *Registry) Get(credential string) (*discord.Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[credential]
	r.mu.RUnlock()
	return conn, ok
}

// Require is Get for request handlers: a missing credential is InvalidInput
// and an unknown one is NotConnected.
func (r *Registry) Require(credential string) (*discord.Conn, error) {
	const op = "registry: lookup"
	if strings.TrimSpace(credential) == "" {
		return nil, apierr.Invalid(op, "bot token is required")
	}
	conn, ok := r.Get(credential)
	if !ok {
		return nil, apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}
	return conn, nil
}

// Disconnect removes credential from the registry and closes its remote
// session. Close failures are logged, not returned; the entry is removed
// regardless. It returns a NotConnected error if no entry existed.
func (r *Registry) Disconnect(credential string) error {
	const op = "registry: disconnect"

	if strings.TrimSpace(credential) == "" {
		return apierr.Invalid(op, "bot token is required")
	}

	r.mu.Lock()
	conn, ok := r.conns[credential]
	delete(r.conns, credential)
	r.mu.Unlock()

	if !ok {
		return apierr.E(apierr.NotConnected, op, "bot not connected", nil)
	}

	if err := conn.Close(); err != nil {
		r.logger.Warn("remote disconnect failed", "credential", conn.Fingerprint(), "error", err)
	}
	r.logger.Info("disconnected", "credential", conn.Fingerprint())
	return nil
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll disconnects every registered connection. It is meant for process
// teardown and stops early only if ctx is done.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*discord.Conn)
	r.mu.Unlock()

	closed := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			r.logger.Warn("teardown interrupted", "remaining", len(conns)-closed)
			return
		}
		if err := conn.Close(); err != nil {
			r.logger.Warn("remote disconnect failed", "credential", conn.Fingerprint(), "error", err)
		}
		closed++
	}
	r.logger.Info("registry closed", "connections", len(conns))
}

func botName(conn *discord.Conn) string {
	if self := conn.Self(); self != nil {
		return self.Username
	}
	return ""
}
