package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/roostlabs/roost/internal/state"
)

// TestBotID covers the external identifier round trip.
func TestBotID(t *testing.T) {
	if got := BotID(7); got != "bot_7" {
		t.Errorf("BotID(7) = %q, want %q", got, "bot_7")
	}

	tests := []struct {
		name   string
		id     string
		want   int
		wantOK bool
	}{
		{"simple", "bot_1", 1, true},
		{"multi digit", "bot_42", 42, true},
		{"missing prefix", "7", 0, false},
		{"wrong prefix", "agent_7", 0, false},
		{"non numeric", "bot_abc", 0, false},
		{"zero", "bot_0", 0, false},
		{"negative", "bot_-3", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseBotID(tt.id)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseBotID(%q) = (%d, %v), want (%d, %v)", tt.id, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestConfigs checks row-to-blob assembly including seed merging and the
// fallback message default.
func TestConfigs(t *testing.T) {
	bot := BotRow{
		ID:              3,
		Token:           "tok",
		CommandPrefix:   "$",
		DMAllowlist:     []string{"100", "200"},
		ServerAllowlist: []string{"900"},
		FunctionDisplayMap: map[string]string{
			"search": "Searching",
		},
		AgentID: 5,
	}
	agent := AgentRow{
		ID:               5,
		Name:             "helper",
		Description:      "a helper",
		RoleInstructions: "be helpful",
		ToolInstructions: "use tools",
		Model:            "gpt-4o-mini",
		Tools:            []string{"search"},
	}

	init, agentCfg := Configs(bot, agent, []string{"200", "300"}, nil)

	if init.BotID != "bot_3" {
		t.Errorf("BotID = %q, want %q", init.BotID, "bot_3")
	}
	if init.CommandPrefix != "$" {
		t.Errorf("CommandPrefix = %q, want %q", init.CommandPrefix, "$")
	}
	if want := []string{"100", "200", "300"}; !reflect.DeepEqual(init.DMAllowlist, want) {
		t.Errorf("DMAllowlist = %v, want %v", init.DMAllowlist, want)
	}
	if want := []string{"900"}; !reflect.DeepEqual(init.ServerAllowlist, want) {
		t.Errorf("ServerAllowlist = %v, want %v", init.ServerAllowlist, want)
	}
	if agentCfg.AppName != "bot_3" {
		t.Errorf("AppName = %q, want %q", agentCfg.AppName, "bot_3")
	}
	if agentCfg.AgentID != 5 || agentCfg.AgentName != "helper" {
		t.Errorf("agent identity = (%d, %q), want (5, %q)", agentCfg.AgentID, agentCfg.AgentName, "helper")
	}
	if agentCfg.FallbackErrorMessage != DefaultFallbackMessage {
		t.Errorf("FallbackErrorMessage = %q, want default", agentCfg.FallbackErrorMessage)
	}
	if err := agentCfg.Validate(); err != nil {
		t.Errorf("assembled config should validate, got %v", err)
	}
}

// TestConfigsDefaults checks prefix defaulting and configured error text.
func TestConfigsDefaults(t *testing.T) {
	bot := BotRow{ID: 1, Token: "tok", ErrorMessage: "sorry, try later"}
	init, agentCfg := Configs(bot, AgentRow{}, nil, nil)

	if init.CommandPrefix != state.DefaultCommandPrefix {
		t.Errorf("CommandPrefix = %q, want %q", init.CommandPrefix, state.DefaultCommandPrefix)
	}
	if agentCfg.FallbackErrorMessage != "sorry, try later" {
		t.Errorf("FallbackErrorMessage = %q, want row text", agentCfg.FallbackErrorMessage)
	}
}

// fakeBotStore serves canned rows for loader tests.
type fakeBotStore struct {
	bots   map[int]BotRow
	agents map[int]AgentRow
}

func (f *fakeBotStore) List(ctx context.Context) ([]BotRow, error) { return nil, nil }

func (f *fakeBotStore) Get(ctx context.Context, id int) (BotRow, bool, error) {
	row, ok := f.bots[id]
	return row, ok, nil
}

func (f *fakeBotStore) Agent(ctx context.Context, agentID int) (AgentRow, bool, error) {
	row, ok := f.agents[agentID]
	return row, ok, nil
}

func (f *fakeBotStore) SetErrorMessage(ctx context.Context, botID int, msg string) error {
	return nil
}

// TestLoaderBotConfigs checks that process-level defaults fill empty prefix
// and model columns and never override populated ones.
func TestLoaderBotConfigs(t *testing.T) {
	l := &Loader{
		Bots: &fakeBotStore{
			bots: map[int]BotRow{
				1: {ID: 1, Token: "tok", AgentID: 5},
				2: {ID: 2, Token: "tok", CommandPrefix: "$", AgentID: 6},
			},
			agents: map[int]AgentRow{
				5: {ID: 5, Name: "helper"},
				6: {ID: 6, Name: "helper", Model: "gpt-4o-mini"},
			},
		},
		DefaultPrefix: ">",
		DefaultModel:  "gemini-2.5-flash",
	}

	init, agentCfg, err := l.BotConfigs(context.Background(), "bot_1")
	if err != nil {
		t.Fatalf("BotConfigs(bot_1): %v", err)
	}
	if init.CommandPrefix != ">" {
		t.Errorf("CommandPrefix = %q, want default %q", init.CommandPrefix, ">")
	}
	if agentCfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want default %q", agentCfg.Model, "gemini-2.5-flash")
	}

	init, agentCfg, err = l.BotConfigs(context.Background(), "bot_2")
	if err != nil {
		t.Fatalf("BotConfigs(bot_2): %v", err)
	}
	if init.CommandPrefix != "$" {
		t.Errorf("CommandPrefix = %q, want row value %q", init.CommandPrefix, "$")
	}
	if agentCfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want row value %q", agentCfg.Model, "gpt-4o-mini")
	}
}

// TestLoaderBotConfigsMissing covers the id and row lookup failures.
func TestLoaderBotConfigsMissing(t *testing.T) {
	l := &Loader{
		Bots: &fakeBotStore{
			bots: map[int]BotRow{
				3: {ID: 3, Token: "tok", AgentID: 99},
			},
		},
	}

	tests := []struct {
		name         string
		id           string
		wantNotFound bool
	}{
		{"bad id", "7", false},
		{"missing bot", "bot_9", true},
		{"missing agent", "bot_3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.BotConfigs(context.Background(), tt.id)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(err, ErrNotFound) = %v, want %v (err: %v)", got, tt.wantNotFound, err)
			}
		})
	}
}

// TestMergeLists covers dedupe and ordering.
func TestMergeLists(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want []string
	}{
		{"both empty", nil, nil, nil},
		{"seeds only", nil, []string{"1", "2"}, []string{"1", "2"}},
		{"row only", []string{"9"}, nil, []string{"9"}},
		{"overlap", []string{"1", "2"}, []string{"2", "3"}, []string{"1", "2", "3"}},
		{"blank entries dropped", []string{"", "1"}, []string{""}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeLists(tt.a, tt.b); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mergeLists(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
