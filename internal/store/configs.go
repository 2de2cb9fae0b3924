package store

import "github.com/roostlabs/roost/internal/state"

// DefaultFallbackMessage is sent on engine failures when the bot row
// carries no error text of its own.
const DefaultFallbackMessage = "⚠️ error: something went wrong, please try again later."

// Configs renders the lifecycle blobs for one bot row pair. Global allowlist
// seeds are merged into the per-bot lists so operators keep access to every
// bot through the environment.
func Configs(bot BotRow, agent AgentRow, seedDMs, seedServers []string) (state.InitConfig, state.AgentConfig) {
	init := state.InitConfig{
		BotID:           BotID(bot.ID),
		Token:           bot.Token,
		CommandPrefix:   bot.CommandPrefix,
		DMAllowlist:     mergeLists(bot.DMAllowlist, seedDMs),
		ServerAllowlist: mergeLists(bot.ServerAllowlist, seedServers),
	}
	if init.CommandPrefix == "" {
		init.CommandPrefix = state.DefaultCommandPrefix
	}

	fallback := bot.ErrorMessage
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}
	agentCfg := state.AgentConfig{
		AppName:              BotID(bot.ID),
		AgentID:              agent.ID,
		AgentName:            agent.Name,
		Description:          agent.Description,
		RoleInstructions:     agent.RoleInstructions,
		ToolInstructions:     agent.ToolInstructions,
		Model:                agent.Model,
		Tools:                agent.Tools,
		FunctionDisplayMap:   bot.FunctionDisplayMap,
		FallbackErrorMessage: fallback,
	}
	return init, agentCfg
}

// mergeLists unions a and b preserving first-seen order.
func mergeLists(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
