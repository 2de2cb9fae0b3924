package worker

import (
	"context"
	"fmt"
)

// ensureSession returns the engine session for a conversation key. The
// cached id is revalidated against the engine on every turn: a session
// cleared elsewhere must not keep serving from the cache. With no usable
// cache entry the newest stored session is adopted, so conversations
// survive bot restarts; only a truly blank key creates a session.
func (w *Worker) ensureSession(ctx context.Context, key string) (string, error) {
	w.mu.Lock()
	cached := w.sessions[key]
	w.mu.Unlock()

	list, err := w.engine.ListSessions(ctx, w.agent.AppName, key)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range list {
		if s.ID == cached {
			return cached, nil
		}
	}

	id := ""
	if len(list) > 0 {
		id = list[0].ID // newest first
	} else {
		created, err := w.engine.CreateSession(ctx, w.agent.AppName, key)
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		id = created.ID
	}

	w.mu.Lock()
	w.sessions[key] = id
	w.mu.Unlock()
	return id, nil
}

// purgeSessions deletes every engine session for key and forgets the
// cache entry. Returns how many were deleted.
func (w *Worker) purgeSessions(ctx context.Context, key string) (int, error) {
	list, err := w.engine.ListSessions(ctx, w.agent.AppName, key)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range list {
		if err := w.engine.DeleteSession(ctx, w.agent.AppName, key, s.ID); err != nil {
			return 0, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
	}

	w.mu.Lock()
	delete(w.sessions, key)
	w.mu.Unlock()
	return len(list), nil
}
