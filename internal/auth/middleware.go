// Package auth guards the HTTP facade with an optional shared bearer token.
// It is independent of the Discord bot credential carried in request bodies.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// QueryParam carries the token on WebSocket upgrades, where browsers cannot
// set an Authorization header.
const QueryParam = "access_token"

// NewMiddleware returns middleware that requires "Authorization: Bearer
// <token>" on every request whose path is not listed in exempt. An empty
// token disables the check. The "Bearer" prefix is case-sensitive and
// followed by exactly one space. WebSocket upgrade requests may instead pass
// the token in the access_token query parameter.
//
// Rejected requests get a 401 JSON body shaped like the facade's other
// errors. A nil logger uses slog.Default().
func NewMiddleware(token string, logger *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			provided, ok := bearer(r)
			if !ok {
				logger.Debug("auth rejected: missing or malformed Authorization header", "remote", r.RemoteAddr, "path", r.URL.Path)
				reject(w)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Debug("auth rejected: invalid token", "remote", r.RemoteAddr, "path", r.URL.Path)
				reject(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, prefix) || len(h) == len(prefix) {
			return "", false
		}
		return h[len(prefix):], true
	}
	if isUpgrade(r) {
		if q := r.URL.Query().Get(QueryParam); q != "" {
			return q, true
		}
	}
	return "", false
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="guildview"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","code":"unauthenticated"}` + "\n"))
}
