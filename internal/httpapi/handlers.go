package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/audit"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/msgsync"
	"github.com/jamesprial/guildview/internal/topology"
)

type botInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func bot(conn *discord.Conn) *botInfo {
	self := conn.Self()
	if self == nil {
		return nil
	}
	return &botInfo{ID: self.ID, Username: self.Username, AvatarURL: self.AvatarURL("")}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.registry.Len(),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	cred := req.credential()
	if cred == "" {
		writeError(w, apierr.Invalid("httpapi: connect", "bot token is required"), "")
		return
	}

	_, existed := s.registry.Get(cred)
	conn, err := s.registry.Connect(r.Context(), cred)
	s.record(r, "connect", cred, nil, start, err)
	if err != nil {
		if apierr.KindOf(err) == apierr.Unauthenticated {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error: "Invalid bot token or connection failed",
				Code:  string(apierr.Unauthenticated),
			})
			return
		}
		writeError(w, err, "Internal server error")
		return
	}

	msg := "Bot connected successfully"
	if existed {
		msg = "Bot already connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"bot":     bot(conn),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	cred := req.credential()

	err = s.registry.Disconnect(cred)
	if cred != "" {
		s.record(r, "disconnect", cred, nil, start, err)
	}
	if err != nil {
		writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Bot disconnected"})
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	conn, err := s.registry.Require(req.credential())
	if err != nil {
		writeError(w, err, "")
		return
	}

	guilds, err := s.listGuilds(r.Context(), conn)
	if err != nil {
		writeError(w, err, "Failed to fetch servers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": guilds})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	guildID := req.guildID()
	if req.credential() == "" || guildID == "" {
		writeError(w, apierr.Invalid("httpapi: channels", "bot token and server ID are required"), "")
		return
	}
	conn, err := s.registry.Require(req.credential())
	if err != nil {
		writeError(w, err, "")
		return
	}

	channels, err := s.listChannels(r.Context(), conn, guildID)
	if err != nil {
		writeError(w, err, "Failed to fetch channels")
		return
	}
	readable := topology.Readable(channels)
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": readable,
		"groups":   topology.GroupByCategory(readable),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	if req.credential() == "" || strings.TrimSpace(req.ChannelID) == "" {
		writeError(w, apierr.Invalid("httpapi: messages", "bot token and channel ID are required"), "")
		return
	}
	conn, err := s.registry.Require(req.credential())
	if err != nil {
		writeError(w, err, "")
		return
	}

	var msgs []msgsync.Message
	if req.After != "" {
		msgs, err = s.engine.Fetch(r.Context(), conn, req.ChannelID, req.Limit, req.After)
	} else {
		msgs, err = s.engine.LoadInitial(r.Context(), conn, req.ChannelID, req.Limit)
	}
	if err != nil {
		writeError(w, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := decode(w, r)
	if err != nil {
		writeError(w, err, "Invalid request")
		return
	}
	cred := req.credential()
	if cred == "" || strings.TrimSpace(req.ChannelID) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, apierr.Invalid("httpapi: send-message", "bot token, channel ID, and message content are required"), "")
		return
	}
	conn, err := s.registry.Require(cred)
	if err != nil {
		writeError(w, err, "")
		return
	}

	msg, err := s.engine.Send(r.Context(), conn, req.ChannelID, req.Content)
	s.record(r, "send_message", cred, map[string]any{
		"channelId": req.ChannelID,
		"length":    len(req.Content),
	}, start, err)
	if err != nil {
		writeError(w, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

// record audits an action. Only the credential fingerprint is recorded.
func (s *Server) record(r *http.Request, action, cred string, params map[string]any, start time.Time, err error) {
	audit.Record(s.audit, action, discord.Fingerprint(cred), RequestID(r.Context()), params, start, err)
}
