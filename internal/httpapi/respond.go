package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jamesprial/guildview/internal/apierr"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// PrivateChannelMessage is the error text the UI keys its private-channel
// notice on.
const PrivateChannelMessage = "This channel is private"

// CodeChannelPrivate is the machine-readable code sent with
// PrivateChannelMessage.
const CodeChannelPrivate = "channel_private"

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// request is the union of fields accepted by the /api/discord endpoints.
// token and serverId are accepted as older names for credential and guildId.
type request struct {
	Credential string `json:"credential"`
	Token      string `json:"token"`
	GuildID    string `json:"guildId"`
	ServerID   string `json:"serverId"`
	ChannelID  string `json:"channelId"`
	Limit      int    `json:"limit"`
	After      string `json:"after"`
	Content    string `json:"content"`
}

func (r request) credential() string {
	if c := strings.TrimSpace(r.Credential); c != "" {
		return c
	}
	return strings.TrimSpace(r.Token)
}

func (r request) guildID() string {
	if g := strings.TrimSpace(r.GuildID); g != "" {
		return g
	}
	return strings.TrimSpace(r.ServerID)
}

// decode reads a JSON request body of at most maxBodyBytes. An empty body
// decodes to the zero request so that missing-field checks produce the
// usual 400s.
func decode(w http.ResponseWriter, r *http.Request) (request, error) {
	var req request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return req, apierr.Invalid("httpapi: decode", "request body too large")
		}
		return req, apierr.E(apierr.InvalidInput, "httpapi: decode", "invalid JSON body", err)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and error body. fallback replaces
// the message of unclassified failures so internal detail does not leak.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status, body := errorResponse(err, fallback)
	writeJSON(w, status, body)
}

func errorResponse(err error, fallback string) (int, errorBody) {
	kind := apierr.KindOf(err)
	if kind == apierr.Forbidden {
		return apierr.HTTPStatus(kind), errorBody{Error: PrivateChannelMessage, Code: CodeChannelPrivate}
	}

	msg := apierr.Message(err, fallback)
	if kind == apierr.Transport {
		msg = fallback
	}
	return apierr.HTTPStatus(kind), errorBody{Error: capitalize(msg), Code: string(kind)}
}

// capitalize upper-cases the first letter, matching the UI's banner text.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
