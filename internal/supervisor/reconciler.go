package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roostlabs/roost/internal/state"
)

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick walks every known bot and converges it: stop intents first so a
// restart frees its worker slot before the start step runs in the same
// pass.
func (s *Supervisor) tick(ctx context.Context) {
	ids, err := s.lifecycle.ListBotIDs(ctx)
	if err != nil {
		slog.Error("reconciler: list bots failed", "error", err)
		return
	}
	for _, id := range ids {
		s.stopStep(ctx, id)
		s.startStep(ctx, id)
	}
}

// stopStep claims a pending stop or restart intent. Claims are atomic
// in the state store, so concurrent supervisors never double-stop.
func (s *Supervisor) stopStep(ctx context.Context, botID string) {
	verdict, err := s.lifecycle.TryShutdown(ctx, botID)
	if err != nil {
		slog.Error("reconciler: stop claim failed", "bot_id", botID, "error", err)
		return
	}

	switch verdict {
	case state.StopNone:
	case state.StopToIdle:
		s.removeWorker(ctx, botID)
		s.lifecycle.SetIdle(ctx, botID)
	case state.StopToRestart:
		s.removeWorker(ctx, botID)
		s.redispatch(ctx, botID)
	}
}

// redispatch reloads fresh rows from the config store and re-marks the
// bot for start; the start step picks it up in the same tick. Reloading
// here is what makes a restart observe row edits.
func (s *Supervisor) redispatch(ctx context.Context, botID string) {
	init, agent, err := s.source.BotConfigs(ctx, botID)
	if err != nil {
		s.failBot(ctx, botID, fmt.Errorf("reload config: %w", err))
		return
	}
	if err := s.lifecycle.MarkShouldStart(ctx, botID, init, agent); err != nil {
		s.failBot(ctx, botID, fmt.Errorf("mark start: %w", err))
	}
}

// startStep claims a pending start intent and spawns the worker from
// the blobs staged in the state store.
func (s *Supervisor) startStep(ctx context.Context, botID string) {
	claimed, err := s.lifecycle.TryStartup(ctx, botID)
	if err != nil {
		slog.Error("reconciler: start claim failed", "bot_id", botID, "error", err)
		return
	}
	if !claimed {
		return
	}

	init, okInit, errInit := s.lifecycle.InitConfig(ctx, botID)
	agent, okAgent, errAgent := s.lifecycle.AgentConfig(ctx, botID)
	if err := errors.Join(errInit, errAgent); err != nil {
		s.failBot(ctx, botID, fmt.Errorf("load config blobs: %w", err))
		return
	}
	if !okInit || !okAgent {
		slog.Warn("reconciler: config blobs missing, parking bot", "bot_id", botID)
		s.lifecycle.SetIdle(ctx, botID)
		return
	}

	s.add(ctx, botID, init, agent)
}
