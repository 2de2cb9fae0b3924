package state

import (
	"errors"
	"fmt"

	"github.com/roostlabs/roost/internal/catalog"
)

// DefaultCommandPrefix is used when a bot row carries no prefix.
const DefaultCommandPrefix = "!"

// ErrInvalidConfig marks config blobs that can never start a bot.
// Callers use IsConfigError to separate these from transient store
// failures.
var ErrInvalidConfig = errors.New("invalid bot config")

// InitConfig holds the per-bot connection parameters. Written by the
// control plane, read once per start by the reconciler.
type InitConfig struct {
	BotID           string   `json:"bot_id"`
	Token           string   `json:"token"`
	CommandPrefix   string   `json:"command_prefix"`
	DMAllowlist     []string `json:"dm_allowlist"`
	ServerAllowlist []string `json:"server_allowlist"`
}

// Validate checks the fields a worker cannot run without.
func (c InitConfig) Validate() error {
	if c.BotID == "" {
		return fmt.Errorf("%w: missing bot_id", ErrInvalidConfig)
	}
	if c.Token == "" {
		return fmt.Errorf("%w: missing credential token", ErrInvalidConfig)
	}
	return nil
}

// AgentConfig holds the agent parameters for one bot. AgentID and
// AgentName ride along so usage records can be written without a
// config-store read on the hot path.
type AgentConfig struct {
	AppName              string            `json:"app_name"`
	AgentID              int               `json:"agent_id"`
	AgentName            string            `json:"agent_name"`
	Description          string            `json:"description"`
	RoleInstructions     string            `json:"role_instructions"`
	ToolInstructions     string            `json:"tool_instructions"`
	Model                string            `json:"model_name"`
	Tools                []string          `json:"tools"`
	FunctionDisplayMap   map[string]string `json:"function_display_map"`
	FallbackErrorMessage string            `json:"fallback_error_message"`
}

// Validate resolves the model through the catalog and checks every
// tool name. Unknown names are rejected at write time so a bad row
// never reaches a running worker.
func (c AgentConfig) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("%w: missing app_name", ErrInvalidConfig)
	}
	if _, err := catalog.Resolve(c.Model); err != nil {
		return err
	}
	return catalog.ValidateTools(c.Tools)
}

// IsConfigError reports whether err is fatal to the bot's config
// rather than a transient failure. Config errors drive the bot to
// idle with the message persisted on its row.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, catalog.ErrUnknownModel) ||
		errors.Is(err, catalog.ErrUnknownTool)
}
