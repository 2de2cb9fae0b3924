// Package config holds the process configuration: a JSON5 file overlaid
// with ROOST_* environment variables. Secrets never live in the file.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roostlabs/roost/internal/router"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON. Discord
// snowflakes are numeric, so operators write them unquoted all the time.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the roost process.
type Config struct {
	Database   DatabaseConfig   `json:"database,omitempty"`
	State      StateConfig      `json:"state,omitempty"`
	Engine     EngineConfig     `json:"engine,omitempty"`
	HTTP       HTTPConfig       `json:"http,omitempty"`
	Supervisor SupervisorConfig `json:"supervisor,omitempty"`
	Router     RouterConfig     `json:"router,omitempty"`
	Chat       ChatConfig       `json:"chat,omitempty"`
}

// DatabaseConfig points at the external config store.
// PostgresDSN is NEVER read from the config file, env ROOST_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// StateConfig points at the lifecycle state store.
// RedisURL is NEVER read from the config file, env ROOST_REDIS_URL only.
type StateConfig struct {
	RedisURL  string `json:"-"`
	OpTimeout string `json:"op_timeout,omitempty"` // Go duration, default "10s"
}

// Timeout returns the per-operation bound for state store round trips.
func (sc StateConfig) Timeout() time.Duration {
	return durationOr(sc.OpTimeout, 10*time.Second)
}

// EngineConfig configures the agent engine.
// GeminiAPIKey comes from env ROOST_GEMINI_API_KEY only.
type EngineConfig struct {
	GeminiAPIKey string `json:"-"`
	DefaultModel string `json:"default_model,omitempty"`
	Timeout      string `json:"timeout,omitempty"` // Go duration, default "30s"
}

// RunTimeout bounds one engine call.
func (ec EngineConfig) RunTimeout() time.Duration {
	return durationOr(ec.Timeout, 30*time.Second)
}

// HTTPConfig configures the control-plane listener.
// Token comes from env ROOST_API_TOKEN only; empty disables auth.
type HTTPConfig struct {
	Host  string `json:"host,omitempty"`
	Port  int    `json:"port,omitempty"`
	Token string `json:"-"`
}

// Addr renders the listen address.
func (hc HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", hc.Host, hc.Port)
}

// SupervisorConfig tunes the reconciler loop.
type SupervisorConfig struct {
	TickInterval string `json:"tick_interval,omitempty"` // default "3s"
	StartTimeout string `json:"start_timeout,omitempty"` // default "30s"
	StopTimeout  string `json:"stop_timeout,omitempty"`  // default "10s"
}

// Tick returns the reconciler cadence.
func (sc SupervisorConfig) Tick() time.Duration {
	return durationOr(sc.TickInterval, 3*time.Second)
}

// StartBound limits one worker start, gateway handshake included.
func (sc SupervisorConfig) StartBound() time.Duration {
	return durationOr(sc.StartTimeout, 30*time.Second)
}

// StopBound limits one worker teardown including the queue drain.
func (sc SupervisorConfig) StopBound() time.Duration {
	return durationOr(sc.StopTimeout, 10*time.Second)
}

// RouterConfig tunes the per-bot fair queue.
type RouterConfig struct {
	MaxChannels   int    `json:"max_channels,omitempty"`   // default 100
	QueueCapacity int    `json:"queue_capacity,omitempty"` // default 64
	EnqueueWait   string `json:"enqueue_wait,omitempty"`   // default "1s"
}

// Options converts to router options; zero fields keep router defaults.
func (rc RouterConfig) Options() router.Options {
	return router.Options{
		MaxChannels:   rc.MaxChannels,
		QueueCapacity: rc.QueueCapacity,
		EnqueueWait:   durationOr(rc.EnqueueWait, 0),
	}
}

// ChatConfig tunes the chat-facing behavior shared by every bot.
type ChatConfig struct {
	CommandPrefix  string  `json:"command_prefix,omitempty"`   // default "!"
	SendTimeout    string  `json:"send_timeout,omitempty"`     // default "5s"
	SendsPerSecond float64 `json:"sends_per_second,omitempty"` // default 1
	SendBurst      int     `json:"send_burst,omitempty"`       // default 5

	// Global allowlist seeds merged into every bot's per-bot lists.
	// Env ROOST_DM_ALLOWLIST / ROOST_SERVER_ALLOWLIST override.
	DMAllowlist     FlexibleStringSlice `json:"dm_allowlist,omitempty"`
	ServerAllowlist FlexibleStringSlice `json:"server_allowlist,omitempty"`
}

// SendBound limits one outbound chat message.
func (cc ChatConfig) SendBound() time.Duration {
	return durationOr(cc.SendTimeout, 5*time.Second)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		State: StateConfig{
			OpTimeout: "10s",
		},
		Engine: EngineConfig{
			DefaultModel: "gemini-2.5-flash-preview-04-17",
			Timeout:      "30s",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 18990,
		},
		Supervisor: SupervisorConfig{
			TickInterval: "3s",
			StartTimeout: "30s",
			StopTimeout:  "10s",
		},
		Router: RouterConfig{
			MaxChannels:   100,
			QueueCapacity: 64,
			EnqueueWait:   "1s",
		},
		Chat: ChatConfig{
			CommandPrefix:  "!",
			SendTimeout:    "5s",
			SendsPerSecond: 1,
			SendBurst:      5,
		},
	}
}

// durationOr parses a Go duration string, falling back when the string
// is empty or unparseable.
func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}
