package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roostlabs/roost/internal/state"
)

// ErrNotFound reports a bot or agent row that does not exist.
var ErrNotFound = errors.New("not found")

// Loader assembles lifecycle config blobs from config rows, merging the
// process-level allowlist seeds into every bot.
type Loader struct {
	Bots        BotStore
	SeedDMs     []string
	SeedServers []string
	// DefaultPrefix replaces the built-in command prefix for bots whose
	// row leaves the prefix empty.
	DefaultPrefix string
	// DefaultModel fills in for agent rows whose model column is empty.
	DefaultModel string
}

// BotConfigs loads the row pair for an external bot id and renders the
// blobs the state store carries. Returns ErrNotFound when either row is
// missing.
func (l *Loader) BotConfigs(ctx context.Context, botID string) (state.InitConfig, state.AgentConfig, error) {
	n, ok := ParseBotID(botID)
	if !ok {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("bad bot id %q", botID)
	}

	bot, ok, err := l.Bots.Get(ctx, n)
	if err != nil {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("load bot %d: %w", n, err)
	}
	if !ok {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("bot %d: %w", n, ErrNotFound)
	}

	agent, ok, err := l.Bots.Agent(ctx, bot.AgentID)
	if err != nil {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("load agent %d: %w", bot.AgentID, err)
	}
	if !ok {
		return state.InitConfig{}, state.AgentConfig{}, fmt.Errorf("agent %d: %w", bot.AgentID, ErrNotFound)
	}

	init, agentCfg := Configs(bot, agent, l.SeedDMs, l.SeedServers)
	if bot.CommandPrefix == "" && l.DefaultPrefix != "" {
		init.CommandPrefix = l.DefaultPrefix
	}
	if agent.Model == "" && l.DefaultModel != "" {
		agentCfg.Model = l.DefaultModel
	}
	return init, agentCfg, nil
}
