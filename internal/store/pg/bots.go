package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roostlabs/roost/internal/store"
)

// PGBotStore implements store.BotStore backed by Postgres.
type PGBotStore struct {
	db *sql.DB
}

func NewPGBotStore(db *sql.DB) *PGBotStore {
	return &PGBotStore{db: db}
}

const botSelectCols = `id, token, error_message, command_prefix, dm_allowlist, server_allowlist, function_display_map, agent_id, created_at, updated_at`

const agentSelectCols = `id, name, description, role_instructions, tool_instructions, model, tools, created_at, updated_at`

func (s *PGBotStore) List(ctx context.Context) ([]store.BotRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+botSelectCols+` FROM bots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.BotRow
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *PGBotStore) Get(ctx context.Context, id int) (store.BotRow, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+botSelectCols+` FROM bots WHERE id = $1`, id)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.BotRow{}, false, nil
	}
	if err != nil {
		return store.BotRow{}, false, err
	}
	return b, true, nil
}

func (s *PGBotStore) Agent(ctx context.Context, agentID int) (store.AgentRow, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentSelectCols+` FROM agents WHERE id = $1`, agentID)

	var a store.AgentRow
	var tools []byte
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.RoleInstructions,
		&a.ToolInstructions, &a.Model, &tools, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.AgentRow{}, false, nil
	}
	if err != nil {
		return store.AgentRow{}, false, err
	}
	scanJSONList(tools, &a.Tools)
	return a, true, nil
}

func (s *PGBotStore) SetErrorMessage(ctx context.Context, botID int, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET error_message = $1, updated_at = $2 WHERE id = $3`,
		msg, time.Now(), botID)
	return err
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBot(row scanner) (store.BotRow, error) {
	var b store.BotRow
	var dms, servers, displayMap []byte
	var agentID sql.NullInt64

	err := row.Scan(
		&b.ID, &b.Token, &b.ErrorMessage, &b.CommandPrefix,
		&dms, &servers, &displayMap, &agentID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return store.BotRow{}, err
	}

	scanJSONList(dms, &b.DMAllowlist)
	scanJSONList(servers, &b.ServerAllowlist)
	scanJSONMap(displayMap, &b.FunctionDisplayMap)
	if agentID.Valid {
		b.AgentID = int(agentID.Int64)
	}
	return b, nil
}
