// Package engine defines the conversational agent engine behind bot
// workers: persistent sessions plus a streamed run API. Implementations
// live in subpackages (engine/gemini).
package engine

import (
	"context"
	"time"
)

// EventKind discriminates streamed run events.
type EventKind string

const (
	// EventPartial carries one text delta of the reply.
	EventPartial EventKind = "partial"
	// EventFunctionCall reports the model invoking a named function.
	EventFunctionCall EventKind = "function_call"
	// EventFunctionResponse reports a function result returning to the model.
	EventFunctionResponse EventKind = "function_response"
	// EventFinal marks a completed run. No events follow it.
	EventFinal EventKind = "final"
	// EventEscalation carries an engine-signalled abort with a message
	// safe to show in chat. No events follow it.
	EventEscalation EventKind = "escalation"
)

// Event is one item of a run's output stream. A non-nil Err reports a
// failed run; it is the last item and its text never reaches chat.
type Event struct {
	Kind         EventKind
	Text         string
	FunctionName string
	Err          error
}

// Session identifies one stored conversation.
type Session struct {
	ID        string
	AppName   string
	UserKey   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunSpec carries the per-run agent parameters. One engine serves every
// bot in the process, so the model and instruction ride with each run.
type RunSpec struct {
	Model       string
	Instruction string
}

// Engine runs agent conversations with persistent transcripts. Sessions
// are scoped to an app name (the owning bot) and a user key (the
// conversation).
type Engine interface {
	CreateSession(ctx context.Context, appName, userKey string) (Session, error)
	ListSessions(ctx context.Context, appName, userKey string) ([]Session, error)
	DeleteSession(ctx context.Context, appName, userKey, sessionID string) error

	// Run streams one turn. The channel closes after a final event, an
	// escalation, or an Err item. Cancelling ctx stops the stream.
	Run(ctx context.Context, appName, sessionID, userKey, message string, spec RunSpec) (<-chan Event, error)
}
