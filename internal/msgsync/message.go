// Package msgsync loads and incrementally synchronizes a channel's message
// history into an ordered, id-unique log.
package msgsync

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Author identifies who wrote a Message.
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	IsBot     bool   `json:"isBot"`
}

// Attachment is a file attached to a Message.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message is a channel message normalized for display.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channelId,omitempty"`
	Content     string       `json:"content"`
	Author      Author       `json:"author"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments"`
}

// FromDiscord converts a discordgo message. fallback is used as the author
// when Discord omits one, which happens on some send responses.
func FromDiscord(m *discordgo.Message, fallback *discordgo.User) Message {
	author := m.Author
	if author == nil {
		author = fallback
	}

	out := Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
		Author:      toAuthor(author),
		CreatedAt:   m.Timestamp.UTC(),
		Attachments: make([]Attachment, 0, len(m.Attachments)),
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, Attachment{
			ID:       a.ID,
			URL:      a.URL,
			Filename: a.Filename,
			MimeType: a.ContentType,
		})
	}
	return out
}

func toAuthor(u *discordgo.User) Author {
	if u == nil {
		return Author{ID: "unknown", Username: "Unknown"}
	}
	return Author{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL(""),
		IsBot:     u.Bot,
	}
}

// less orders messages for display: by creation time, then by snowflake id.
func less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return lessID(a.ID, b.ID)
}

// lessID compares snowflake ids numerically without parsing them: a shorter
// id is older, equal lengths compare lexically.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
