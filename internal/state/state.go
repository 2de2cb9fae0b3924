// Package state is the Redis-backed coordination store for bot
// lifecycles.
//
// Every bot has exactly one state string, two config blobs and two
// transition locks:
//
//	bot:{id}:state         one of the BotState values, absent = idle
//	bot:{id}:init_config   JSON InitConfig
//	bot:{id}:setup_config  JSON AgentConfig
//	lock:bot:{id}:starting
//	lock:bot:{id}:stopping
//
// The store also keeps the per-model rate-limit ledger
// (ratelimit:{model_key}, see ledger.go). All contents are transient:
// ResetAll wipes them at process start and the control plane re-marks
// desired states from the config store.
package state

// BotState is the lifecycle state of one bot id.
type BotState string

const (
	StateIdle          BotState = "idle"
	StateShouldStart   BotState = "should_start"
	StateStarting      BotState = "starting"
	StateRunning       BotState = "running"
	StateShouldStop    BotState = "should_stop"
	StateStopping      BotState = "stopping"
	StateShouldRestart BotState = "should_restart"
)

var validStates = map[BotState]bool{
	StateIdle:          true,
	StateShouldStart:   true,
	StateStarting:      true,
	StateRunning:       true,
	StateShouldStop:    true,
	StateStopping:      true,
	StateShouldRestart: true,
}

// Valid reports whether s is a recognized lifecycle state.
func (s BotState) Valid() bool { return validStates[s] }

// StopVerdict is the outcome of TryShutdown.
type StopVerdict string

const (
	// StopNone means the bot was not asked to stop or restart.
	StopNone StopVerdict = "none"
	// StopToIdle means the bot moved to stopping and should end idle.
	StopToIdle StopVerdict = "to_idle"
	// StopToRestart means the bot moved straight to starting; the
	// caller tears the old worker down and dispatches a fresh start.
	StopToRestart StopVerdict = "to_restart"
)

// shutdownVerdict decides the stop-step transition for an observed
// state. Restart demotes to starting so the reconciler's start step
// picks the bot up again after removal.
func shutdownVerdict(current BotState) (next BotState, verdict StopVerdict) {
	switch current {
	case StateShouldStop:
		return StateStopping, StopToIdle
	case StateShouldRestart:
		return StateStarting, StopToRestart
	default:
		return "", StopNone
	}
}

// startupAllowed reports whether the start step may claim the bot.
func startupAllowed(current BotState) bool {
	return current == StateShouldStart
}
