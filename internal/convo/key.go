// Package convo builds and parses conversation keys.
//
// A conversation key is the routing identity for one stream of discourse.
// Exactly one engine session and one router queue exist per key:
//
//	DM:             dm:{userID}
//	Server channel: ch:{channelID}
//
// Examples:
//
//	dm:386246614
//	ch:1187220303282815
//
// The clear_sessions command accepts a separate target syntax
// (channel_{id} / dm_{id}) which ParseTarget resolves to a key.
package convo

import (
	"fmt"
	"strings"
)

// Kind distinguishes direct-message conversations from server channels.
type Kind string

const (
	KindDM      Kind = "dm"
	KindChannel Kind = "ch"
)

// DMKey builds the conversation key for a direct message with one user.
//
//	dm:{userID}
func DMKey(userID string) string {
	return fmt.Sprintf("dm:%s", userID)
}

// ChannelKey builds the conversation key for a server channel.
//
//	ch:{channelID}
func ChannelKey(channelID string) string {
	return fmt.Sprintf("ch:%s", channelID)
}

// KeyFor derives the key for an inbound message. Server messages route per
// channel so everyone in the channel shares one session; DMs route per user.
func KeyFor(inGuild bool, userID, channelID string) string {
	if inGuild {
		return ChannelKey(channelID)
	}
	return DMKey(userID)
}

// Parse splits a conversation key into its kind and raw id.
// Returns ok=false if the key is not in the expected format.
func Parse(key string) (kind Kind, id string, ok bool) {
	prefix, rest, found := strings.Cut(key, ":")
	if !found || rest == "" {
		return "", "", false
	}
	switch Kind(prefix) {
	case KindDM, KindChannel:
		return Kind(prefix), rest, true
	}
	return "", "", false
}

// ParseTarget resolves a clear_sessions target argument to a conversation key.
//
//	channel_{id} → ch:{id}
//	dm_{id}      → dm:{id}
//
// Returns ok=false for anything else, including empty ids.
func ParseTarget(target string) (key string, ok bool) {
	if id, found := strings.CutPrefix(target, "channel_"); found && id != "" {
		return ChannelKey(id), true
	}
	if id, found := strings.CutPrefix(target, "dm_"); found && id != "" {
		return DMKey(id), true
	}
	return "", false
}
