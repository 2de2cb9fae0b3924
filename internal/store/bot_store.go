package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BotID renders the external identifier for a bot row, e.g. "bot_7".
// Lifecycle keys, session app names, and the HTTP surface all use this form.
func BotID(n int) string {
	return fmt.Sprintf("bot_%d", n)
}

// ParseBotID extracts the row id from an external bot identifier.
func ParseBotID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "bot_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// BotRow mirrors one row of the bots table.
type BotRow struct {
	ID                 int
	Token              string
	ErrorMessage       string
	CommandPrefix      string
	DMAllowlist        []string
	ServerAllowlist    []string
	FunctionDisplayMap map[string]string
	AgentID            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AgentRow mirrors one row of the agents table.
type AgentRow struct {
	ID               int
	Name             string
	Description      string
	RoleInstructions string
	ToolInstructions string
	Model            string
	Tools            []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BotStore reads bot and agent configuration rows.
type BotStore interface {
	// List returns all bot rows ordered by id.
	List(ctx context.Context) ([]BotRow, error)
	// Get returns one bot row; ok is false when the id does not exist.
	Get(ctx context.Context, id int) (BotRow, bool, error)
	// Agent returns the agent row a bot references.
	Agent(ctx context.Context, agentID int) (AgentRow, bool, error)
	// SetErrorMessage overwrites the error text stored on the bot row.
	SetErrorMessage(ctx context.Context, botID int, msg string) error
}
