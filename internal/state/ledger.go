package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ledgerEntry is one recorded request in a model's rate window.
// Entries live in a Redis list in append order, so expired entries
// cluster at the head.
type ledgerEntry struct {
	Tokens    int   `json:"tokens"`
	At        int64 `json:"at"`
	ExpiresAt int64 `json:"expires_at"`
}

// RecordWindowUsage appends a request's token count to the model's
// rate window. Unrestricted models (interval <= 0) keep no ledger.
func (s *Store) RecordWindowUsage(ctx context.Context, modelKey string, tokens int, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	now := time.Now()
	blob, err := json.Marshal(ledgerEntry{
		Tokens:    tokens,
		At:        now.Unix(),
		ExpiresAt: now.Add(interval).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.RPush(ctx, ledgerKey(modelKey), blob).Err(); err != nil {
		return fmt.Errorf("record window usage %s: %w", modelKey, err)
	}
	return nil
}

// WindowUsage returns the live token sum in the model's rate window,
// trimming entries that have expired.
func (s *Store) WindowUsage(ctx context.Context, modelKey string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := ledgerKey(modelKey)
	items, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read window %s: %w", modelKey, err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	entries := make([]ledgerEntry, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item), &entries[i]); err != nil {
			slog.Warn("state store: malformed ledger entry dropped", "model_key", modelKey, "error", err)
			entries[i] = ledgerEntry{}
		}
	}

	sum, first, last, live := liveBounds(entries, time.Now().Unix())
	if !live {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			slog.Warn("state store: window delete failed", "model_key", modelKey, "error", err)
		}
		return 0, nil
	}
	if err := s.rdb.LTrim(ctx, key, int64(first), int64(last)).Err(); err != nil {
		slog.Warn("state store: window trim failed", "model_key", modelKey, "error", err)
	}
	return sum, nil
}

// liveBounds sums unexpired entries and reports the index range to
// keep. Zero-valued entries (malformed on the wire) count as expired.
func liveBounds(entries []ledgerEntry, now int64) (sum, first, last int, live bool) {
	first, last = -1, -1
	for i, e := range entries {
		if e.ExpiresAt <= now {
			continue
		}
		sum += e.Tokens
		if first < 0 {
			first = i
		}
		last = i
	}
	return sum, first, last, first >= 0
}
