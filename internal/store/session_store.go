package store

import (
	"context"
	"encoding/json"
	"time"
)

// SessionRow is one engine conversation session. Sessions are scoped to an
// app name (the owning bot) and a user key (the conversation).
type SessionRow struct {
	ID        string
	AppName   string
	UserKey   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRow is one transcript turn. Content holds the serialized engine
// message; Role mirrors the role inside it for cheap filtering.
type MessageRow struct {
	ID        int64
	SessionID string
	Role      string
	Content   json.RawMessage
	CreatedAt time.Time
}

// SessionStore persists engine sessions and their transcripts.
type SessionStore interface {
	// CreateSession inserts a new session and returns it.
	CreateSession(ctx context.Context, appName, userKey string) (SessionRow, error)
	// ListSessions returns sessions for one conversation, newest first.
	ListSessions(ctx context.Context, appName, userKey string) ([]SessionRow, error)
	// DeleteSession removes a session and its messages. Unknown ids are a no-op.
	DeleteSession(ctx context.Context, appName, userKey, sessionID string) error
	// Messages returns the session transcript in insertion order.
	Messages(ctx context.Context, sessionID string) ([]MessageRow, error)
	// AppendMessages appends turns to the transcript and touches the session.
	AppendMessages(ctx context.Context, sessionID string, msgs []MessageRow) error
}
