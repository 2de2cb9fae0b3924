// Package worker runs one Discord bot: the gateway connection, message
// admission, the per-conversation router, and the agent dispatch path.
//
// A worker's life is owned by the supervisor. Start opens the gateway
// and returns once the ready event lands; Stop closes the connection
// and drains the router. Everything between is event-driven.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/roostlabs/roost/internal/engine"
	"github.com/roostlabs/roost/internal/router"
	"github.com/roostlabs/roost/internal/runner"
	"github.com/roostlabs/roost/internal/state"
)

// Options tune one worker's queueing and outbound pacing. Zero values
// fall back to defaults.
type Options struct {
	Router      router.Options
	SendTimeout time.Duration
	SendRate    rate.Limit
	SendBurst   int
}

// Worker is one live bot.
type Worker struct {
	init  state.InitConfig
	agent state.AgentConfig

	session   *discordgo.Session
	engine    engine.Engine
	runner    *runner.Runner
	router    *router.Router
	limiter   *rate.Limiter
	sendBound time.Duration

	// post writes one message to a channel. Split from send so tests can
	// capture output without a gateway.
	post func(channelID, text string) error

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	botUserID string
	sessions  map[string]string // conversation key → engine session id
}

// New validates the config blobs and prepares the gateway session.
// Nothing connects until Start.
func New(init state.InitConfig, agent state.AgentConfig, eng engine.Engine, run *runner.Runner, opts Options) (*Worker, error) {
	if err := init.Validate(); err != nil {
		return nil, err
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + init.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	sendRate := opts.SendRate
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	sendBurst := opts.SendBurst
	if sendBurst <= 0 {
		sendBurst = defaultSendBurst
	}

	w := &Worker{
		init:      init,
		agent:     agent,
		session:   session,
		engine:    eng,
		runner:    run,
		router:    router.New(opts.Router),
		limiter:   rate.NewLimiter(sendRate, sendBurst),
		sendBound: opts.SendTimeout,
		ready:     make(chan struct{}),
		sessions:  make(map[string]string),
	}
	w.post = func(channelID, text string) error {
		_, err := session.ChannelMessageSend(channelID, text)
		return err
	}

	session.AddHandler(w.handleReady)
	session.AddHandler(w.handleMessage)
	return w, nil
}

// BotID returns the bot's stable identity.
func (w *Worker) BotID() string { return w.init.BotID }

// Snapshot reports the router's queue state for monitoring.
func (w *Worker) Snapshot() router.Snapshot { return w.router.Snapshot() }

// Start opens the gateway connection and blocks until the ready event
// arrives or ctx expires.
func (w *Worker) Start(ctx context.Context) error {
	slog.Info("starting bot", "bot_id", w.init.BotID)
	if err := w.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	select {
	case <-w.ready:
	case <-ctx.Done():
		w.session.Close()
		return fmt.Errorf("waiting for discord ready: %w", ctx.Err())
	}

	slog.Info("bot connected", "bot_id", w.init.BotID, "user_id", w.botUser())
	return nil
}

// Stop closes the gateway so no new messages arrive, then drains the
// router within ctx. On ctx expiry in-flight handlers are cancelled.
func (w *Worker) Stop(ctx context.Context) error {
	slog.Info("stopping bot", "bot_id", w.init.BotID)
	if err := w.session.Close(); err != nil {
		slog.Warn("discord close failed", "bot_id", w.init.BotID, "error", err)
	}
	return w.router.Shutdown(ctx)
}

func (w *Worker) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	w.mu.Lock()
	w.botUserID = r.User.ID
	w.mu.Unlock()
	w.readyOnce.Do(func() { close(w.ready) })
}

func (w *Worker) botUser() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.botUserID
}
