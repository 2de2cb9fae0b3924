// Package gemini implements the agent engine on the Gemini API.
// Transcripts persist through the session store so conversations survive
// process restarts.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/roostlabs/roost/internal/engine"
	"github.com/roostlabs/roost/internal/store"
)

// Engine is a single shared Gemini client serving every bot in the
// process. Per-bot parameters arrive with each run.
type Engine struct {
	client   *genai.Client
	sessions store.SessionStore
}

// New dials the Gemini API.
func New(ctx context.Context, apiKey string, sessions store.SessionStore) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Engine{client: client, sessions: sessions}, nil
}

func (e *Engine) CreateSession(ctx context.Context, appName, userKey string) (engine.Session, error) {
	row, err := e.sessions.CreateSession(ctx, appName, userKey)
	if err != nil {
		return engine.Session{}, err
	}
	return toSession(row), nil
}

func (e *Engine) ListSessions(ctx context.Context, appName, userKey string) ([]engine.Session, error) {
	rows, err := e.sessions.ListSessions(ctx, appName, userKey)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSession(r))
	}
	return out, nil
}

func (e *Engine) DeleteSession(ctx context.Context, appName, userKey, sessionID string) error {
	return e.sessions.DeleteSession(ctx, appName, userKey, sessionID)
}

func toSession(r store.SessionRow) engine.Session {
	return engine.Session{
		ID:        r.ID,
		AppName:   r.AppName,
		UserKey:   r.UserKey,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
