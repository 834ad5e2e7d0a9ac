// Package testutil provides shared test infrastructure for guildview tests.
//
// The primary helper is NewMockDiscordSession, which starts an httptest.Server
// that simulates the Discord REST endpoints guildview calls and points
// discordgo's endpoint variables at it.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MockToken is the bot token the mock server accepts by default.
const MockToken = "test-token"

// MockDiscord bundles the test server and an in-memory model of the guilds,
// channels and messages it serves. Tests mutate the model through the Add*
// and SetPrivate helpers; all access is guarded by an internal mutex.
//
// discordgo's endpoints are package-level variables, so tests using a
// MockDiscord must not run in parallel with each other.
type MockDiscord struct {
	Server  *httptest.Server
	Session *discordgo.Session
	Mux     *http.ServeMux

	mu       sync.Mutex
	token    string
	self     *discordgo.User
	guilds   []*discordgo.UserGuild
	channels map[string][]*discordgo.Channel // guild ID -> channels, remote order
	byID     map[string]*discordgo.Channel
	messages map[string][]*discordgo.Message // channel ID -> messages, oldest first
	private  map[string]bool
	requests []string
	nextID   int

	restore func()
}

// Close shuts down the test server and restores discordgo's endpoints.
func (m *MockDiscord) Close() {
	m.Server.Close()
	m.restore()
}

// Self returns the bot user reported by GET /users/@me.
func (m *MockDiscord) Self() *discordgo.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// SetToken changes the token the handshake endpoint accepts.
func (m *MockDiscord) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// AddGuild appends a guild to the bot's guild list.
func (m *MockDiscord) AddGuild(g *discordgo.UserGuild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds = append(m.guilds, g)
	if _, ok := m.channels[g.ID]; !ok {
		m.channels[g.ID] = nil
	}
}

// AddChannel appends a channel to guildID in remote order.
func (m *MockDiscord) AddChannel(guildID string, ch *discordgo.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch.GuildID = guildID
	m.channels[guildID] = append(m.channels[guildID], ch)
	m.byID[ch.ID] = ch
}

// AddMessage stores msg in channelID. Messages are kept in ID order.
func (m *MockDiscord) AddMessage(channelID string, msg *discordgo.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ChannelID = channelID
	list := append(m.messages[channelID], msg)
	sort.SliceStable(list, func(i, j int) bool { return lessID(list[i].ID, list[j].ID) })
	m.messages[channelID] = list
}

// SetPrivate makes message reads and sends on channelID fail with 403.
func (m *MockDiscord) SetPrivate(channelID string) {
	m.mu.Lock()
	m.private[channelID] = true
	m.mu.Unlock()
}

// Requests returns the "METHOD path?query" lines received so far.
func (m *MockDiscord) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// CountRequests returns how many received requests start with prefix.
func (m *MockDiscord) CountRequests(prefix string) int {
	n := 0
	for _, r := range m.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// NewMockDiscordSession starts an httptest.Server with handlers that simulate
// Discord's REST API and returns a MockDiscord that wraps both the server and
// a discordgo.Session pointed at it.
//
// The returned MockDiscord should be cleaned up via t.Cleanup:
//
//	md := testutil.NewMockDiscordSession(t)
//	t.Cleanup(md.Close)
func NewMockDiscordSession(t *testing.T) *MockDiscord {
	t.Helper()

	m := &MockDiscord{
		Mux:      http.NewServeMux(),
		token:    MockToken,
		self:     &discordgo.User{ID: "900000000000000001", Username: "guildview-bot", Bot: true},
		channels: make(map[string][]*discordgo.Channel),
		byID:     make(map[string]*discordgo.Channel),
		messages: make(map[string][]*discordgo.Message),
		private:  make(map[string]bool),
		nextID:   1000,
	}

	m.Mux.HandleFunc("/api/v9/users/", m.handleUsers)
	m.Mux.HandleFunc("/api/v9/guilds/", m.handleGuilds)
	m.Mux.HandleFunc("/api/v9/channels/", m.handleChannels)

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		line := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			line += "?" + r.URL.RawQuery
		}
		m.requests = append(m.requests, line)
		m.mu.Unlock()
		m.Mux.ServeHTTP(w, r)
	}))

	origDiscord := discordgo.EndpointDiscord
	origAPI := discordgo.EndpointAPI
	origGuilds := discordgo.EndpointGuilds
	origChannels := discordgo.EndpointChannels
	origUsers := discordgo.EndpointUsers
	m.restore = func() {
		discordgo.EndpointDiscord = origDiscord
		discordgo.EndpointAPI = origAPI
		discordgo.EndpointGuilds = origGuilds
		discordgo.EndpointChannels = origChannels
		discordgo.EndpointUsers = origUsers
	}

	// Override discordgo's endpoint variables so the session talks to our mock.
	discordgo.EndpointDiscord = m.Server.URL + "/"
	discordgo.EndpointAPI = discordgo.EndpointDiscord + "api/v" + discordgo.APIVersion + "/"
	discordgo.EndpointGuilds = discordgo.EndpointAPI + "guilds/"
	discordgo.EndpointChannels = discordgo.EndpointAPI + "channels/"
	discordgo.EndpointUsers = discordgo.EndpointAPI + "users/"

	dg, err := discordgo.New("Bot " + MockToken)
	if err != nil {
		t.Fatalf("testutil: discordgo.New failed: %v", err)
	}
	m.Session = dg

	return m
}

// GET /users/@me, GET /users/@me/guilds
func (m *MockDiscord) handleUsers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v9/users/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Header.Get("Authorization") != "Bot "+m.token {
		writeError(w, http.StatusUnauthorized, 0, "401: Unauthorized")
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "@me":
		writeJSON(w, m.self)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "@me" && parts[1] == "guilds":
		limit := queryInt(r, "limit", 200)
		after := r.URL.Query().Get("after")
		out := make([]*discordgo.UserGuild, 0, len(m.guilds))
		for _, g := range m.guilds {
			if after != "" && !lessID(after, g.ID) {
				continue
			}
			out = append(out, g)
			if len(out) == limit {
				break
			}
		}
		writeJSON(w, out)

	default:
		writeError(w, http.StatusNotFound, 0, "404: Not Found")
	}
}

// GET /guilds/{id}/channels
func (m *MockDiscord) handleGuilds(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v9/guilds/")
	parts := strings.Split(path, "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Method != http.MethodGet || len(parts) != 2 || parts[1] != "channels" {
		writeError(w, http.StatusNotFound, 0, "404: Not Found")
		return
	}
	channels, ok := m.channels[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, discordgo.ErrCodeUnknownGuild, "Unknown Guild")
		return
	}
	if channels == nil {
		channels = []*discordgo.Channel{}
	}
	writeJSON(w, channels)
}

// GET /channels/{id}, GET|POST /channels/{id}/messages
func (m *MockDiscord) handleChannels(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v9/channels/")
	parts := strings.Split(path, "/")
	channelID := parts[0]

	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.byID[channelID]
	if !ok {
		writeError(w, http.StatusNotFound, discordgo.ErrCodeUnknownChannel, "Unknown Channel")
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		writeJSON(w, ch)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "messages":
		if m.private[channelID] {
			writeError(w, http.StatusForbidden, discordgo.ErrCodeMissingAccess, "Missing Access")
			return
		}
		writeJSON(w, m.selectMessages(channelID, queryInt(r, "limit", 50), r.URL.Query().Get("after")))

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "messages":
		if m.private[channelID] {
			writeError(w, http.StatusForbidden, discordgo.ErrCodeMissingAccess, "Missing Access")
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, 0, "bad body")
			return
		}
		m.nextID++
		msg := &discordgo.Message{
			ID:        strconv.Itoa(m.nextID),
			ChannelID: channelID,
			Content:   body.Content,
			Author:    m.self,
			Timestamp: time.Now().UTC(),
		}
		m.messages[channelID] = append(m.messages[channelID], msg)
		writeJSON(w, msg)

	default:
		writeError(w, http.StatusNotFound, 0, "404: Not Found")
	}
}

// selectMessages mirrors Discord's paging: without a cursor the newest limit
// messages are returned, with an after cursor the oldest limit messages past
// it. Either way the response is newest first. The caller must hold m.mu.
func (m *MockDiscord) selectMessages(channelID string, limit int, after string) []*discordgo.Message {
	all := m.messages[channelID]
	var picked []*discordgo.Message
	if after == "" {
		start := len(all) - limit
		if start < 0 {
			start = 0
		}
		picked = append(picked, all[start:]...)
	} else {
		for _, msg := range all {
			if lessID(after, msg.ID) {
				picked = append(picked, msg)
				if len(picked) == limit {
					break
				}
			}
		}
	}
	out := make([]*discordgo.Message, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		out = append(out, picked[i])
	}
	return out
}

// lessID orders snowflake-style identifiers: shorter is older, equal lengths
// compare lexically.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// writeJSON marshals v as JSON and writes it to w with 200 OK.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a Discord-shaped JSON error body.
func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"code":%d,"message":%q}`, code, msg)
}
