// Package supervisor owns the live worker registry and the reconciler
// loop that converges desired bot state onto it.
//
// All authority lives in the state store; the registry only mirrors
// which workers are currently alive in this process. A process restart
// therefore loses nothing: the next tick re-observes and converges.
package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roostlabs/roost/internal/router"
	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
)

const (
	defaultTickInterval = 3 * time.Second
	defaultStartTimeout = 30 * time.Second
	defaultStopTimeout  = 10 * time.Second
)

// Worker is the supervisor's grip on one live bot.
type Worker interface {
	BotID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() router.Snapshot
}

// Factory builds a worker from its config blobs. Construction validates
// the blobs, so a factory error is usually a config error.
type Factory func(init state.InitConfig, agent state.AgentConfig) (Worker, error)

// Lifecycle is the state-machine face of the state store.
type Lifecycle interface {
	TryStartup(ctx context.Context, botID string) (bool, error)
	TryShutdown(ctx context.Context, botID string) (state.StopVerdict, error)
	SetRunning(ctx context.Context, botID string)
	SetIdle(ctx context.Context, botID string)
	MarkShouldStart(ctx context.Context, botID string, init state.InitConfig, agent state.AgentConfig) error
	InitConfig(ctx context.Context, botID string) (state.InitConfig, bool, error)
	AgentConfig(ctx context.Context, botID string) (state.AgentConfig, bool, error)
	ListBotIDs(ctx context.Context) ([]string, error)
}

// ConfigSource loads the authoritative config rows for one bot. Used on
// restart so a redeployed bot picks up row changes.
type ConfigSource interface {
	BotConfigs(ctx context.Context, botID string) (state.InitConfig, state.AgentConfig, error)
}

// ErrorSink persists a bot's failure text where operators read it.
type ErrorSink interface {
	SetErrorMessage(ctx context.Context, botID int, msg string) error
}

// Supervisor runs the reconciler and owns every live worker.
type Supervisor struct {
	lifecycle Lifecycle
	source    ConfigSource
	errs      ErrorSink
	factory   Factory

	TickInterval time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration

	mu      sync.Mutex
	workers map[string]Worker

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func New(lc Lifecycle, source ConfigSource, errs ErrorSink, factory Factory) *Supervisor {
	return &Supervisor{
		lifecycle:    lc,
		source:       source,
		errs:         errs,
		factory:      factory,
		TickInterval: defaultTickInterval,
		StartTimeout: defaultStartTimeout,
		StopTimeout:  defaultStopTimeout,
		workers:      make(map[string]Worker),
	}
}

// Start launches the reconciler loop.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
	slog.Info("supervisor started", "tick", s.TickInterval)
}

// Stop halts the loop, waits for in-flight starts to settle, then tears
// down every worker within ctx.
func (s *Supervisor) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.wg.Wait()

	for _, id := range s.List() {
		s.removeWorker(ctx, id)
		s.lifecycle.SetIdle(ctx, id)
	}
	slog.Info("supervisor stopped")
}

// Get returns the live worker for a bot id, if any.
func (s *Supervisor) Get(botID string) (Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[botID]
	return w, ok
}

// List returns the ids of all live workers, sorted.
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// add registers and starts a worker for the claimed bot. The start runs
// on its own goroutine so one slow gateway handshake cannot stall the
// tick; the registry entry exists from the moment of insertion so a
// concurrent stop finds something to tear down.
func (s *Supervisor) add(ctx context.Context, botID string, init state.InitConfig, agent state.AgentConfig) {
	s.mu.Lock()
	_, exists := s.workers[botID]
	s.mu.Unlock()
	if exists {
		// A live worker already serves this bot; converge the state
		// back and skip the duplicate start.
		slog.Warn("supervisor: worker already present", "bot_id", botID)
		s.lifecycle.SetRunning(ctx, botID)
		return
	}

	w, err := s.factory(init, agent)
	if err != nil {
		s.failBot(ctx, botID, err)
		return
	}

	s.mu.Lock()
	s.workers[botID] = w
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.StartTimeout)
		defer cancel()

		if err := w.Start(ctx); err != nil {
			s.mu.Lock()
			delete(s.workers, botID)
			s.mu.Unlock()
			s.failBot(context.Background(), botID, err)
			return
		}
		s.lifecycle.SetRunning(context.Background(), botID)
		slog.Info("supervisor: worker running", "bot_id", botID)
	}()
}

// removeWorker stops and forgets a worker. Missing ids are a no-op.
func (s *Supervisor) removeWorker(ctx context.Context, botID string) {
	s.mu.Lock()
	w, ok := s.workers[botID]
	delete(s.workers, botID)
	s.mu.Unlock()
	if !ok {
		return
	}

	stopCtx, cancel := context.WithTimeout(ctx, s.StopTimeout)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		slog.Warn("supervisor: worker stop incomplete", "bot_id", botID, "error", err)
	}
	slog.Info("supervisor: worker removed", "bot_id", botID)
}

// failBot parks the bot idle and persists the failure for operators.
func (s *Supervisor) failBot(ctx context.Context, botID string, cause error) {
	slog.Error("supervisor: bot failed", "bot_id", botID, "error", cause)
	s.lifecycle.SetIdle(ctx, botID)

	n, ok := store.ParseBotID(botID)
	if !ok {
		return
	}
	if err := s.errs.SetErrorMessage(ctx, n, cause.Error()); err != nil {
		slog.Warn("supervisor: persist error message failed", "bot_id", botID, "error", err)
	}
}
