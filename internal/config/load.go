package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// DefaultPath is the config file read when neither --config nor
// ROOST_CONFIG names one.
const DefaultPath = "roost.json5"

// ResolvePath picks the config file path: explicit flag value first,
// then ROOST_CONFIG, then the default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("ROOST_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; env vars alone can configure the process.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets live in env only.
	envStr("ROOST_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ROOST_REDIS_URL", &c.State.RedisURL)
	envStr("ROOST_GEMINI_API_KEY", &c.Engine.GeminiAPIKey)
	envStr("ROOST_API_TOKEN", &c.HTTP.Token)

	envStr("ROOST_DEFAULT_MODEL", &c.Engine.DefaultModel)

	envStr("ROOST_HOST", &c.HTTP.Host)
	if v := os.Getenv("ROOST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.HTTP.Port = port
		}
	}

	// Allowlist seeds from env (comma-separated).
	if v := os.Getenv("ROOST_DM_ALLOWLIST"); v != "" {
		c.Chat.DMAllowlist = splitList(v)
	}
	if v := os.Getenv("ROOST_SERVER_ALLOWLIST"); v != "" {
		c.Chat.ServerAllowlist = splitList(v)
	}
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
