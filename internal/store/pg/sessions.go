package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roostlabs/roost/internal/store"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
type PGSessionStore struct {
	db *sql.DB
}

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

const sessionSelectCols = `id, app_name, user_key, created_at, updated_at`

func (s *PGSessionStore) CreateSession(ctx context.Context, appName, userKey string) (store.SessionRow, error) {
	now := time.Now()
	row := store.SessionRow{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AppName:   appName,
		UserKey:   userKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, app_name, user_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.AppName, row.UserKey, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return store.SessionRow{}, fmt.Errorf("insert session: %w", err)
	}
	return row, nil
}

func (s *PGSessionStore) ListSessions(ctx context.Context, appName, userKey string) ([]store.SessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionSelectCols+` FROM sessions
		 WHERE app_name = $1 AND user_key = $2
		 ORDER BY updated_at DESC`,
		appName, userKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.SessionRow
	for rows.Next() {
		var r store.SessionRow
		if err := rows.Scan(&r.ID, &r.AppName, &r.UserKey, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *PGSessionStore) DeleteSession(ctx context.Context, appName, userKey, sessionID string) error {
	// Messages go with the session via ON DELETE CASCADE.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1 AND app_name = $2 AND user_key = $3`,
		sessionID, appName, userKey)
	return err
}

func (s *PGSessionStore) Messages(ctx context.Context, sessionID string) ([]store.MessageRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM session_messages
		 WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.MessageRow
	for rows.Next() {
		var m store.MessageRow
		var content []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = content
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *PGSessionStore) AppendMessages(ctx context.Context, sessionID string, msgs []store.MessageRow) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_messages (session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare append stmt: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range msgs {
		content := m.Content
		if content == nil {
			content = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, sessionID, m.Role, []byte(content), now); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = $1 WHERE id = $2`, now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}
