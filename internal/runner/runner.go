// Package runner adapts the agent engine to the chat path. One Run call
// is one conversation turn: the request is gated on the model's rate
// window, the engine's event stream is mapped to outgoing text, output is
// sliced into chat-sized chunks, and token usage is recorded afterwards.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roostlabs/roost/internal/catalog"
	"github.com/roostlabs/roost/internal/engine"
	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
)

// ErrRateLimited reports a request rejected by a model's rate window.
var ErrRateLimited = errors.New("model rate window exhausted")

const (
	defaultEngineTimeout = 30 * time.Second
	defaultPollInterval  = time.Second
)

// Ledger is the per-model rate window, owned by the state store.
type Ledger interface {
	WindowUsage(ctx context.Context, modelKey string) (int, error)
	RecordWindowUsage(ctx context.Context, modelKey string, tokens int, interval time.Duration) error
}

// Request is one queued agent invocation.
type Request struct {
	SessionID string
	UserKey   string
	// Query is the user text with the context preamble already attached.
	Query string
	// OnlyFinal suppresses partial and function-call output.
	OnlyFinal bool
	Agent     state.AgentConfig
}

// Runner wraps the engine for bot workers.
type Runner struct {
	engine engine.Engine
	ledger Ledger
	usage  store.UsageStore

	// EngineTimeout bounds one run end to end.
	EngineTimeout time.Duration
	// PollInterval is the deferred-request recheck cadence.
	PollInterval time.Duration
}

func New(eng engine.Engine, ledger Ledger, usage store.UsageStore) *Runner {
	return &Runner{
		engine:        eng,
		ledger:        ledger,
		usage:         usage,
		EngineTimeout: defaultEngineTimeout,
		PollInterval:  defaultPollInterval,
	}
}

// Run executes one turn, delivering chat-ready chunks through send in
// order. Engine and adaptor failures never escape: they are logged and
// the bot's fallback message becomes the only remaining output, with no
// usage written. The returned error is non-nil only when ctx ended or
// send itself failed.
func (r *Runner) Run(ctx context.Context, req Request, send func(string) error) error {
	if req.Query == "" {
		return nil
	}

	model, err := catalog.Resolve(req.Agent.Model)
	if err != nil {
		// Config validation happens at write time, so this is unexpected.
		slog.Error("run with unknown model", "model", req.Agent.Model, "error", err)
		return r.fail(req, send)
	}
	counter, err := catalog.NewCounter(model.Name)
	if err != nil {
		slog.Error("token counter unavailable", "model", model.Name, "error", err)
		return r.fail(req, send)
	}
	queryTokens, approxIn := counter.Count(req.Query)

	if err := r.admit(ctx, model, queryTokens); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("request rejected by rate window",
			"model", model.Name, "user_key", req.UserKey, "tokens", queryTokens, "error", err)
		return r.fail(req, send)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.EngineTimeout)
	defer cancel()

	spec := engine.RunSpec{
		Model:       model.Name,
		Instruction: Instruction(req.Agent, time.Now()),
	}
	events, err := r.engine.Run(runCtx, req.Agent.AppName, req.SessionID, req.UserKey, req.Query, spec)
	if err != nil {
		slog.Error("engine run failed to start",
			"app", req.Agent.AppName, "session_id", req.SessionID, "error", err)
		return r.fail(req, send)
	}

	reply, finished, err := r.consume(runCtx, req, events, send)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !finished {
		return r.fail(req, send)
	}

	r.record(ctx, req, model, counter, queryTokens, approxIn, reply)
	return nil
}

// admit gates the request on the model's rate window. Window reads that
// fail are treated as empty so a state-store hiccup never blocks chat.
func (r *Runner) admit(ctx context.Context, model catalog.Spec, queryTokens int) error {
	rst := model.Restriction
	if !rst.Limited() {
		return nil
	}
	for {
		used, err := r.ledger.WindowUsage(ctx, model.LedgerKey())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("window read failed, admitting request", "model", model.Name, "error", err)
			return nil
		}
		if used+queryTokens <= rst.MaxTokens {
			return nil
		}
		if rst.Policy == catalog.PolicyReject {
			return ErrRateLimited
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.PollInterval):
		}
	}
}

// consume maps the event stream to outgoing chunks. It returns the
// turn's reply text (the terminal message, used for output accounting)
// and whether the stream reached a terminal event. The returned error is
// a send failure only.
func (r *Runner) consume(ctx context.Context, req Request, events <-chan engine.Event, send func(string) error) (string, bool, error) {
	var accumulated strings.Builder

	emit := func(text string) error {
		for _, chunk := range Chunks(text) {
			if err := send(chunk); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		var ev engine.Event
		var ok bool
		select {
		case <-ctx.Done():
			return "", false, nil
		case ev, ok = <-events:
			if !ok {
				return "", false, nil
			}
		}

		switch {
		case ev.Err != nil:
			slog.Error("engine stream failed",
				"app", req.Agent.AppName, "session_id", req.SessionID, "error", ev.Err)
			return "", false, nil

		case ev.Kind == engine.EventPartial:
			accumulated.WriteString(ev.Text)
			if !req.OnlyFinal {
				if err := emit(ev.Text); err != nil {
					return "", false, err
				}
			}

		case ev.Kind == engine.EventFunctionCall:
			if !req.OnlyFinal {
				if err := emit(functionLabel(req.Agent.FunctionDisplayMap, ev.FunctionName)); err != nil {
					return "", false, err
				}
			}

		case ev.Kind == engine.EventEscalation:
			msg := ev.Text
			if msg == "" {
				msg = "no specific message."
			}
			reply := "⚠️ error: " + msg
			if err := emit(reply); err != nil {
				return "", false, err
			}
			return reply, true, nil

		case ev.Kind == engine.EventFinal:
			reply := strings.TrimSpace(accumulated.String() + ev.Text)
			if reply == "" {
				reply = "⚠️ no response received."
			}
			if err := emit(reply); err != nil {
				return "", false, err
			}
			return reply, true, nil
		}
	}
}

// fail delivers the fallback message as the turn's only remaining output.
func (r *Runner) fail(req Request, send func(string) error) error {
	msg := req.Agent.FallbackErrorMessage
	if msg == "" {
		msg = store.DefaultFallbackMessage
	}
	for _, chunk := range Chunks(msg) {
		if err := send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// record books the completed turn: the query's tokens go into the model's
// rate window, and a usage row is accumulated. Neither failure is fatal.
func (r *Runner) record(ctx context.Context, req Request, model catalog.Spec, counter *catalog.Counter, queryTokens int, approxIn bool, reply string) {
	if model.Restriction.Limited() {
		if err := r.ledger.RecordWindowUsage(ctx, model.LedgerKey(), queryTokens, model.Restriction.Interval); err != nil {
			slog.Warn("window record failed", "model", model.Name, "error", err)
		}
	}

	outTokens, approxOut := counter.Count(reply)
	now := time.Now()
	rec := store.UsageRecord{
		AgentID:      req.Agent.AgentID,
		AgentName:    req.Agent.AgentName,
		ModelName:    model.Name,
		Year:         now.Year(),
		Month:        int(now.Month()),
		InputTokens:  int64(queryTokens),
		OutputTokens: int64(outTokens),
		Approximate:  approxIn || approxOut,
	}
	if err := r.usage.Record(ctx, rec); err != nil {
		slog.Warn("usage record failed", "agent_id", rec.AgentID, "model", model.Name, "error", err)
	}
}
