package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultOpTimeout bounds every store round trip.
const defaultOpTimeout = 10 * time.Second

// Store coordinates bot lifecycles through Redis.
type Store struct {
	rdb *redis.Client

	// OpTimeout bounds each round trip. Zero means the default.
	OpTimeout time.Duration
}

// NewClient connects a Redis client from a URL
// (redis://host:port/db) or a bare host:port address.
func NewClient(url string) (*redis.Client, error) {
	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: url}), nil
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// State returns the bot's lifecycle state. Absent keys and store
// errors both read as idle; the next reconciler tick re-observes.
func (s *Store) State(ctx context.Context, botID string) BotState {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	val, err := s.rdb.Get(ctx, stateKey(botID)).Result()
	if err == redis.Nil {
		return StateIdle
	}
	if err != nil {
		slog.Error("state store: get state failed", "bot_id", botID, "error", err)
		return StateIdle
	}
	st := BotState(val)
	if !st.Valid() {
		slog.Warn("state store: unrecognized state value", "bot_id", botID, "value", val)
		return StateIdle
	}
	return st
}

// SetState writes the bot's state. Unrecognized values log and no-op.
func (s *Store) SetState(ctx context.Context, botID string, st BotState) {
	if !st.Valid() {
		slog.Error("state store: refusing invalid state", "bot_id", botID, "state", string(st))
		return
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, stateKey(botID), string(st), 0).Err(); err != nil {
		slog.Error("state store: set state failed", "bot_id", botID, "state", string(st), "error", err)
	}
}

// MarkShouldStart validates and writes both config blobs, then flips
// the bot to should_start in the same transaction.
func (s *Store) MarkShouldStart(ctx context.Context, botID string, init InitConfig, agent AgentConfig) error {
	if err := init.Validate(); err != nil {
		return err
	}
	if err := agent.Validate(); err != nil {
		return err
	}

	initBlob, err := json.Marshal(init)
	if err != nil {
		return fmt.Errorf("marshal init config: %w", err)
	}
	agentBlob, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, initConfigKey(botID), initBlob, 0)
	pipe.Set(ctx, setupConfigKey(botID), agentBlob, 0)
	pipe.Set(ctx, stateKey(botID), string(StateShouldStart), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark should_start %s: %w", botID, err)
	}
	return nil
}

// MarkShouldStop requests a cooperative stop.
func (s *Store) MarkShouldStop(ctx context.Context, botID string) {
	s.SetState(ctx, botID, StateShouldStop)
}

// MarkShouldRestart requests a stop followed by a fresh start.
func (s *Store) MarkShouldRestart(ctx context.Context, botID string) {
	s.SetState(ctx, botID, StateShouldRestart)
}

// SetRunning records that the worker reported ready.
func (s *Store) SetRunning(ctx context.Context, botID string) {
	s.SetState(ctx, botID, StateRunning)
}

// SetIdle records that the bot has no live worker.
func (s *Store) SetIdle(ctx context.Context, botID string) {
	s.SetState(ctx, botID, StateIdle)
}

// InitConfig reads the bot's init blob. Missing blob returns ok=false.
func (s *Store) InitConfig(ctx context.Context, botID string) (InitConfig, bool, error) {
	var cfg InitConfig
	ok, err := s.getJSON(ctx, initConfigKey(botID), &cfg)
	return cfg, ok, err
}

// AgentConfig reads the bot's agent blob. Missing blob returns ok=false.
func (s *Store) AgentConfig(ctx context.Context, botID string) (AgentConfig, bool, error) {
	var cfg AgentConfig
	ok, err := s.getJSON(ctx, setupConfigKey(botID), &cfg)
	return cfg, ok, err
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	blob, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return false, fmt.Errorf("%w: malformed blob at %s: %v", ErrInvalidConfig, key, err)
	}
	return true, nil
}

// ClearConfig deletes both config blobs for the bot.
func (s *Store) ClearConfig(ctx context.Context, botID string) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, initConfigKey(botID), setupConfigKey(botID)).Err(); err != nil {
		slog.Error("state store: clear config failed", "bot_id", botID, "error", err)
	}
}

// TryStartup claims the start transition. It returns true only when
// this caller held the starting lock and observed should_start; lock
// contention returns false with no error so the next tick retries.
func (s *Store) TryStartup(ctx context.Context, botID string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	token, held, err := s.acquireLock(ctx, startingLockKey(botID))
	if err != nil {
		return false, err
	}
	if !held {
		return false, nil
	}
	defer s.releaseLock(ctx, startingLockKey(botID), token)

	if !startupAllowed(s.State(ctx, botID)) {
		return false, nil
	}
	s.SetState(ctx, botID, StateStarting)
	slog.Info("state store: claimed start", "bot_id", botID)
	return true, nil
}

// TryShutdown claims the stop transition. should_stop moves to
// stopping (StopToIdle); should_restart moves straight to starting
// (StopToRestart) so the start step runs after teardown. Contention
// or any other state returns StopNone.
func (s *Store) TryShutdown(ctx context.Context, botID string) (StopVerdict, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	token, held, err := s.acquireLock(ctx, stoppingLockKey(botID))
	if err != nil {
		return StopNone, err
	}
	if !held {
		return StopNone, nil
	}
	defer s.releaseLock(ctx, stoppingLockKey(botID), token)

	next, verdict := shutdownVerdict(s.State(ctx, botID))
	if verdict == StopNone {
		return StopNone, nil
	}
	s.SetState(ctx, botID, next)
	slog.Info("state store: claimed stop", "bot_id", botID, "verdict", string(verdict))
	return verdict, nil
}

// ListBotIDs scans every bot:* key and returns the deduplicated,
// sorted id set.
func (s *Store) ListBotIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	seen := map[string]bool{}
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "bot:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan bot keys: %w", err)
		}
		for _, key := range keys {
			if id, ok := parseBotKey(key); ok {
				seen[id] = true
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// States returns the observed state for every known bot.
func (s *Store) States(ctx context.Context) (map[string]BotState, error) {
	ids, err := s.ListBotIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]BotState, len(ids))
	for _, id := range ids {
		out[id] = s.State(ctx, id)
	}
	return out, nil
}

// ResetAll drives every known bot to idle and deletes its config and
// lock keys. Run once at process start so stale locks and in-flight
// markers from a crash cannot block new transitions.
func (s *Store) ResetAll(ctx context.Context) error {
	ids, err := s.ListBotIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.SetIdle(ctx, id)

		opCtx, cancel := s.opCtx(ctx)
		err := s.rdb.Del(opCtx,
			initConfigKey(id),
			setupConfigKey(id),
			startingLockKey(id),
			stoppingLockKey(id),
		).Err()
		cancel()
		if err != nil {
			slog.Error("state store: reset cleanup failed", "bot_id", id, "error", err)
		}
	}
	slog.Info("state store: reset complete", "bots", len(ids))
	return nil
}
