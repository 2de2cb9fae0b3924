package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roostlabs/roost/internal/convo"
)

const commandTimeout = 10 * time.Second

// command splits body into a prefixed command invocation. Only the first
// argument matters; extra words are ignored.
func command(body, prefix string) (name, arg string, ok bool) {
	if prefix == "" {
		return "", "", false
	}
	rest, found := strings.CutPrefix(body, prefix)
	if !found {
		return "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", false
	}
	name = fields[0]
	if len(fields) > 1 {
		arg = fields[1]
	}
	return name, arg, true
}

// runCommand executes one command inline. Commands bypass the router:
// they answer about conversations rather than within one.
func (w *Worker) runCommand(msg inbound, key, name, arg string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch name {
	case "help":
		w.reply(ctx, msg.channelID, w.helpText())
	case "clear_sessions":
		w.clearSessions(ctx, msg, key, arg)
	default:
		slog.Debug("unknown command ignored", "bot_id", w.init.BotID, "command", name)
	}
}

func (w *Worker) helpText() string {
	p := w.init.CommandPrefix
	return strings.Join([]string{
		"Commands:",
		p + "help: show this message",
		p + "clear_sessions: forget this conversation",
		p + "clear_sessions channel_<id>|dm_<id>: forget another conversation (channel managers only)",
	}, "\n")
}

// clearSessions deletes every stored session for a conversation key and
// acknowledges with the count. The caller's own key is the default;
// targeting another key needs channel-management permission.
func (w *Worker) clearSessions(ctx context.Context, msg inbound, key, target string) {
	if target != "" {
		if !msg.canManage {
			w.reply(ctx, msg.channelID, "you need channel management permission to clear other conversations.")
			return
		}
		resolved, ok := convo.ParseTarget(target)
		if !ok {
			w.reply(ctx, msg.channelID, "invalid target, expected channel_<id> or dm_<id>.")
			return
		}
		key = resolved
	}

	count, err := w.purgeSessions(ctx, key)
	if err != nil {
		slog.Error("clear sessions failed", "bot_id", w.init.BotID, "key", key, "error", err)
		w.reply(ctx, msg.channelID, "could not clear sessions, please try again.")
		return
	}
	if count == 0 {
		w.reply(ctx, msg.channelID, "no sessions.")
		return
	}
	w.reply(ctx, msg.channelID, fmt.Sprintf("cleared %d session(s).", count))
}

func (w *Worker) reply(ctx context.Context, channelID, text string) {
	if err := w.send(ctx, channelID, text); err != nil {
		slog.Warn("command reply failed", "bot_id", w.init.BotID, "channel_id", channelID, "error", err)
	}
}
