package state

import (
	"errors"
	"testing"

	"github.com/roostlabs/roost/internal/catalog"
)

func validInit() InitConfig {
	return InitConfig{
		BotID:           "bot_1",
		Token:           "discord-token",
		CommandPrefix:   "!",
		DMAllowlist:     []string{"386246614"},
		ServerAllowlist: []string{"guild-1"},
	}
}

func validAgent() AgentConfig {
	return AgentConfig{
		AppName:              "bot_1",
		AgentID:              1,
		AgentName:            "helper",
		Description:          "a helpful assistant",
		RoleInstructions:     "be helpful",
		ToolInstructions:     "use tools sparingly",
		Model:                "gemini-2.5-flash-preview-04-17",
		Tools:                []string{"search", "math"},
		FunctionDisplayMap:   map[string]string{"search": "searching"},
		FallbackErrorMessage: "something went wrong",
	}
}

// TestInitConfig_Validate covers the fields a worker cannot start
// without.
func TestInitConfig_Validate(t *testing.T) {
	if err := validInit().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	missingToken := validInit()
	missingToken.Token = ""
	if err := missingToken.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing token error = %v, want ErrInvalidConfig", err)
	}

	missingID := validInit()
	missingID.BotID = ""
	if err := missingID.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing bot_id error = %v, want ErrInvalidConfig", err)
	}
}

// TestAgentConfig_Validate covers model and tool rejection.
func TestAgentConfig_Validate(t *testing.T) {
	if err := validAgent().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	aliased := validAgent()
	aliased.Model = "claude-sonnet-4"
	if err := aliased.Validate(); err != nil {
		t.Errorf("aliased model rejected: %v", err)
	}

	badModel := validAgent()
	badModel.Model = "gpt-9"
	if err := badModel.Validate(); !errors.Is(err, catalog.ErrUnknownModel) {
		t.Errorf("unknown model error = %v, want ErrUnknownModel", err)
	}

	badTool := validAgent()
	badTool.Tools = []string{"search", "time_travel"}
	if err := badTool.Validate(); !errors.Is(err, catalog.ErrUnknownTool) {
		t.Errorf("unknown tool error = %v, want ErrUnknownTool", err)
	}

	missingApp := validAgent()
	missingApp.AppName = ""
	if err := missingApp.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing app_name error = %v, want ErrInvalidConfig", err)
	}
}

// TestIsConfigError verifies classification against transient errors.
func TestIsConfigError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid config", err: ErrInvalidConfig, want: true},
		{name: "unknown model", err: catalog.ErrUnknownModel, want: true},
		{name: "unknown tool", err: catalog.ErrUnknownTool, want: true},
		{name: "transient", err: errors.New("connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfigError(tt.err); got != tt.want {
				t.Errorf("IsConfigError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
