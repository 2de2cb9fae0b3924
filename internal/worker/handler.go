package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/roostlabs/roost/internal/convo"
	"github.com/roostlabs/roost/internal/router"
	"github.com/roostlabs/roost/internal/runner"
	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
)

// busyMessage is the terse reply when the router refuses a message.
const busyMessage = "⚠️ busy right now, please try again shortly."

// inbound is the admission-relevant shape of one gateway message.
type inbound struct {
	authorID    string
	authorBot   bool
	username    string
	displayName string
	guildID     string
	guildName   string
	channelID   string
	channelName string
	// channelOK is true for direct messages and standard guild text
	// channels; threads, voice and announcement channels are out.
	channelOK   bool
	mentionsBot bool
	canManage   bool
	content     string
}

// handleMessage is the gateway ingress: describe, admit, then either run
// a command inline or hand the turn to the router.
func (w *Worker) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := w.botUser()
	if botID == "" || m.Author == nil || m.Author.ID == botID {
		return
	}

	msg := describe(s, m, botID)
	key, body, reason := admit(msg, botID, w.init)
	if reason != "" {
		slog.Debug("message rejected",
			"bot_id", w.init.BotID, "user_id", msg.authorID, "channel_id", msg.channelID, "reason", reason)
		return
	}

	if name, arg, ok := command(body, w.init.CommandPrefix); ok {
		w.runCommand(msg, key, name, arg)
		return
	}
	w.dispatch(msg, key, body)
}

// describe flattens a gateway message into the fields admission and the
// preamble need. Lookups that fail leave their fields zero.
func describe(s *discordgo.Session, m *discordgo.MessageCreate, botID string) inbound {
	msg := inbound{
		authorID:    m.Author.ID,
		authorBot:   m.Author.Bot,
		username:    m.Author.Username,
		displayName: displayName(m),
		guildID:     m.GuildID,
		channelID:   m.ChannelID,
		content:     m.Content,
	}
	for _, u := range m.Mentions {
		if u.ID == botID {
			msg.mentionsBot = true
			break
		}
	}

	if m.GuildID == "" {
		msg.channelOK = true
		return msg
	}

	if ch, err := channelInfo(s, m.ChannelID); err == nil {
		msg.channelOK = ch.Type == discordgo.ChannelTypeGuildText
		msg.channelName = ch.Name
	} else {
		slog.Debug("channel lookup failed", "channel_id", m.ChannelID, "error", err)
	}
	if g, err := s.State.Guild(m.GuildID); err == nil {
		msg.guildName = g.Name
	}
	if perms, err := s.State.MessagePermissions(m.Message); err == nil {
		msg.canManage = perms&(discordgo.PermissionManageChannels|discordgo.PermissionAdministrator) != 0
	}
	return msg
}

func channelInfo(s *discordgo.Session, id string) (*discordgo.Channel, error) {
	if ch, err := s.State.Channel(id); err == nil {
		return ch, nil
	}
	return s.Channel(id)
}

// displayName picks the richest name available for a message author:
// server nickname, then global display name, then username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// admit applies the admission rules to one message. On acceptance it
// returns the conversation key and the body with any leading
// self-mention removed; on rejection the reason is non-empty.
func admit(msg inbound, botID string, init state.InitConfig) (key, body, reason string) {
	switch {
	case msg.authorBot:
		return "", "", "bot author"
	case !msg.channelOK:
		return "", "", "unsupported channel"
	}

	if msg.guildID == "" {
		if !slices.Contains(init.DMAllowlist, msg.authorID) {
			return "", "", "sender not in dm allowlist"
		}
	} else {
		if !msg.mentionsBot {
			return "", "", "not mentioned"
		}
		if !slices.Contains(init.ServerAllowlist, msg.guildID) {
			return "", "", "server not in allowlist"
		}
	}

	key = convo.KeyFor(msg.guildID != "", msg.authorID, msg.channelID)
	body = stripLeadingMention(msg.content, botID)
	if body == "" {
		return "", "", "empty body"
	}
	return key, body, ""
}

// stripLeadingMention removes one leading mention of the bot from text.
// Mentions elsewhere in the body stay.
func stripLeadingMention(text, botID string) string {
	text = strings.TrimSpace(text)
	if botID == "" {
		return text
	}
	for _, tag := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if rest, ok := strings.CutPrefix(text, tag); ok {
			return strings.TrimSpace(rest)
		}
	}
	return text
}

// withUserInfo prepends the context preamble the agent's instruction
// promises: who is speaking and where.
func withUserInfo(msg inbound, body string) string {
	var b strings.Builder
	b.WriteString("[USER_INFO]\n")
	fmt.Fprintf(&b, "User ID: %s\n", msg.authorID)
	fmt.Fprintf(&b, "Username: %s\n", msg.username)
	if msg.displayName != "" && msg.displayName != msg.username {
		fmt.Fprintf(&b, "Display Name: %s\n", msg.displayName)
	}
	if msg.guildID == "" {
		b.WriteString("Channel Type: Direct Message\n")
	} else {
		b.WriteString("Channel Type: Text Channel\n")
		fmt.Fprintf(&b, "Channel Name: %s\n", msg.channelName)
		fmt.Fprintf(&b, "Server Name: %s\n", msg.guildName)
	}
	b.WriteString("[/USER_INFO]\n\n")
	b.WriteString(body)
	return b.String()
}

// dispatch queues the turn under its conversation key. The handler runs
// on the key's serial worker; this goroutine only enqueues.
func (w *Worker) dispatch(msg inbound, key, body string) {
	query := withUserInfo(msg, body)
	channelID := msg.channelID

	handler := func(ctx context.Context) error {
		sessionID, err := w.ensureSession(ctx, key)
		if err != nil {
			w.sendFallback(ctx, channelID)
			return fmt.Errorf("ensure session for %s: %w", key, err)
		}
		req := runner.Request{
			SessionID: sessionID,
			UserKey:   key,
			Query:     query,
			Agent:     w.agent,
		}
		return w.runner.Run(ctx, req, func(chunk string) error {
			return w.send(ctx, channelID, chunk)
		})
	}

	if err := w.router.Enqueue(context.Background(), key, handler); err != nil {
		slog.Warn("message dropped", "bot_id", w.init.BotID, "key", key, "error", err)
		if errors.Is(err, router.ErrBacklogged) || errors.Is(err, router.ErrSaturated) {
			ctx, cancel := context.WithTimeout(context.Background(), w.sendBudget())
			defer cancel()
			if err := w.send(ctx, channelID, busyMessage); err != nil {
				slog.Warn("busy notice failed", "bot_id", w.init.BotID, "error", err)
			}
		}
	}
}

func (w *Worker) sendFallback(ctx context.Context, channelID string) {
	msg := w.agent.FallbackErrorMessage
	if msg == "" {
		msg = store.DefaultFallbackMessage
	}
	if err := w.send(ctx, channelID, msg); err != nil {
		slog.Warn("fallback send failed", "bot_id", w.init.BotID, "channel_id", channelID, "error", err)
	}
}
