package topology

import "github.com/bwmarrin/discordgo"

// Kind is the closed set of channel kinds exposed to the UI.
type Kind string

const (
	KindText         Kind = "text"
	KindVoice        Kind = "voice"
	KindCategory     Kind = "category"
	KindAnnouncement Kind = "announcement"
	KindStage        Kind = "stage"
	KindForum        Kind = "forum"
	KindUnknown      Kind = "unknown"
)

// KindOf maps a Discord channel type code onto a Kind. Unrecognized codes,
// including threads and DMs, map to KindUnknown.
func KindOf(t discordgo.ChannelType) Kind {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return KindText
	case discordgo.ChannelTypeGuildVoice:
		return KindVoice
	case discordgo.ChannelTypeGuildCategory:
		return KindCategory
	case discordgo.ChannelTypeGuildNews:
		return KindAnnouncement
	case discordgo.ChannelTypeGuildStageVoice:
		return KindStage
	case discordgo.ChannelTypeGuildForum:
		return KindForum
	default:
		return KindUnknown
	}
}

// HasMessages reports whether channels of kind k carry a message history
// that can be read and written directly. Categories and forums do not:
// forum content lives in threads.
func (k Kind) HasMessages() bool {
	switch k {
	case KindText, KindAnnouncement, KindVoice, KindStage:
		return true
	default:
		return false
	}
}
