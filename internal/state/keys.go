package state

import (
	"fmt"
	"strings"
)

func stateKey(botID string) string       { return fmt.Sprintf("bot:%s:state", botID) }
func initConfigKey(botID string) string  { return fmt.Sprintf("bot:%s:init_config", botID) }
func setupConfigKey(botID string) string { return fmt.Sprintf("bot:%s:setup_config", botID) }

func startingLockKey(botID string) string { return fmt.Sprintf("lock:bot:%s:starting", botID) }
func stoppingLockKey(botID string) string { return fmt.Sprintf("lock:bot:%s:stopping", botID) }

func ledgerKey(modelKey string) string { return fmt.Sprintf("ratelimit:%s", modelKey) }

// parseBotKey extracts the bot id segment from any bot:{id}:... key.
func parseBotKey(key string) (botID string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "bot" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
