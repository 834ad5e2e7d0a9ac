package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/jamesprial/guildview/internal/apierr"
	"github.com/jamesprial/guildview/internal/audit"
	"github.com/jamesprial/guildview/internal/discord"
	"github.com/jamesprial/guildview/internal/selection"
	"github.com/jamesprial/guildview/internal/topology"
)

const (
	helloTimeout  = 10 * time.Second
	writeTimeout  = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 64 << 10
	outboxSize    = 16
)

// Stream frame types.
const (
	FrameHello           = "hello"
	FrameReady           = "ready"
	FrameState           = "state"
	FrameError           = "error"
	FrameSent            = "sent"
	FrameSelectGuild     = "selectGuild"
	FrameSelectChannel   = "selectChannel"
	FrameDeselectChannel = "deselectChannel"
	FrameSend            = "send"
	FrameRefresh         = "refresh"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is a client -> server frame.
type command struct {
	Type       string          `json:"type"`
	Credential string          `json:"credential,omitempty"`
	Guild      *topology.Guild `json:"guild,omitempty"`
	GuildID    string          `json:"guildId,omitempty"`
	ChannelID  string          `json:"channelId,omitempty"`
	Content    string          `json:"content,omitempty"`
}

// frame is a server -> client frame.
type frame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Bot       *botInfo         `json:"bot,omitempty"`
	State     *selection.State `json:"state,omitempty"`
	Message   any              `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Code      string           `json:"code,omitempty"`
}

var (
	errClientGone   = errors.New("httpapi: stream client gone")
	errDisconnected = apierr.E(apierr.NotConnected, "httpapi: stream", "bot not connected", nil)
)

// session is one viewer's stream: a connection, the selection it drives and
// an outbox drained by the single writer.
type session struct {
	id     string
	ws     *websocket.Conn
	conn   *discord.Conn
	coord  *selection.Coordinator
	outbox chan frame
	srv    *Server
	reqID  string
}

// handleStream upgrades to a WebSocket. The first frame must be a hello
// carrying a credential that is already connected; after that the client
// sends selection commands and receives a state frame after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameBytes)

	_ = ws.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello command
	if err := ws.ReadJSON(&hello); err != nil {
		s.logger.Debug("stream hello not received", "error", err)
		return
	}
	if hello.Type != FrameHello {
		s.closeWithError(ws, apierr.Invalid("httpapi: stream", "first frame must be hello"))
		return
	}
	cred := strings.TrimSpace(hello.Credential)
	conn, err := s.registry.Require(cred)
	if err != nil {
		s.closeWithError(ws, err)
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		ws:     ws,
		conn:   conn,
		coord:  s.newCoordinator(conn),
		outbox: make(chan frame, outboxSize),
		srv:    s,
		reqID:  RequestID(r.Context()),
	}
	defer sess.coord.Close()

	s.logger.Info("stream opened", "session", sess.id, "credential", conn.Fingerprint())
	err = sess.run(r.Context())
	s.logger.Info("stream closed", "session", sess.id, "error", err)
}

func (s *Server) closeWithError(ws *websocket.Conn, err error) {
	_, body := errorResponse(err, "Stream failed")
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = ws.WriteJSON(frame{Type: FrameError, Error: body.Error, Code: body.Code})
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, body.Error))
}

// run pumps frames until the client leaves, the credential is disconnected or
// a write fails. It returns nil on a normal close.
func (sess *session) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sess.push(frame{Type: FrameReady, SessionID: sess.id, Bot: bot(sess.conn)})

	g.Go(func() error { return sess.readPump(gctx, g) })
	g.Go(func() error { return sess.writePump(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the reader when the writer is the one that failed.
		return sess.ws.Close()
	})

	err := g.Wait()
	if errors.Is(err, errClientGone) {
		return nil
	}
	return err
}

func (sess *session) readPump(ctx context.Context, g *errgroup.Group) error {
	_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		return sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := sess.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				sess.srv.logger.Debug("stream read failed", "session", sess.id, "error", err)
			}
			return errClientGone
		}
		_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))

		// Commands run concurrently so a newer selection can supersede a
		// slow load; the coordinator discards the stale result.
		g.Go(func() error {
			sess.dispatch(ctx, cmd)
			return nil
		})
	}
}

func (sess *session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	changed := sess.coord.Changed()
	for {
		select {
		case <-ctx.Done():
			_ = sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = sess.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case f := <-sess.outbox:
			if err := sess.write(f); err != nil {
				return err
			}

		case <-sess.conn.Done():
			// The credential was disconnected; the coordinator stops on its own.
			sess.srv.closeWithError(sess.ws, errDisconnected)
			return errDisconnected

		case <-changed:
			changed = sess.coord.Changed()
			st := sess.coord.State()
			if err := sess.write(frame{Type: FrameState, State: &st}); err != nil {
				return err
			}

		case <-ticker.C:
			_ = sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sess.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (sess *session) write(f frame) error {
	_ = sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.ws.WriteJSON(f)
}

// push queues f for the writer, dropping it if the outbox is full.
func (sess *session) push(f frame) {
	select {
	case sess.outbox <- f:
	default:
		sess.srv.logger.Warn("stream outbox full, dropping frame", "session", sess.id, "type", f.Type)
	}
}

func (sess *session) pushError(err error) {
	_, body := errorResponse(err, "Request failed")
	sess.push(frame{Type: FrameError, Error: body.Error, Code: body.Code})
}

func (sess *session) dispatch(ctx context.Context, cmd command) {
	var err error
	switch cmd.Type {
	case FrameSelectGuild:
		guild := topology.Guild{ID: cmd.GuildID}
		if cmd.Guild != nil {
			guild = *cmd.Guild
		}
		if guild.ID == "" {
			err = apierr.Invalid("httpapi: stream", "server ID is required")
			break
		}
		err = sess.coord.SelectGuild(ctx, guild)

	case FrameSelectChannel:
		ch, ok := sess.findChannel(cmd.ChannelID)
		if !ok {
			err = apierr.E(apierr.NotFound, "httpapi: stream", "text channel not found", nil)
			break
		}
		err = sess.coord.SelectChannel(ctx, ch)

	case FrameDeselectChannel:
		sess.coord.DeselectChannel()

	case FrameRefresh:
		err = sess.coord.Refresh(ctx)

	case FrameSend:
		start := time.Now()
		var channelID string
		if st := sess.coord.State(); st.Channel != nil {
			channelID = st.Channel.ID
		}
		msg, sendErr := sess.coord.Send(ctx, cmd.Content)
		audit.Record(sess.srv.audit, "send_message", sess.conn.Fingerprint(), sess.reqID,
			map[string]any{"channelId": channelID, "length": len(cmd.Content), "session": sess.id}, start, sendErr)
		if sendErr == nil {
			sess.push(frame{Type: FrameSent, Message: msg})
		}
		err = sendErr

	default:
		err = apierr.Invalid("httpapi: stream", "unknown command "+cmd.Type)
	}

	// Failures of a cancelled session are not reported.
	if err != nil && ctx.Err() == nil {
		sess.pushError(err)
	}
}

func (sess *session) findChannel(id string) (topology.Channel, bool) {
	for _, ch := range sess.coord.State().Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return topology.Channel{}, false
}
