package store

import "context"

// UsageRecord is one run's token consumption, accumulated into the monthly
// per-agent per-model usage row. Approximate marks counts produced by the
// fallback estimator rather than a real tokenizer.
type UsageRecord struct {
	AgentID      int
	AgentName    string
	ModelName    string
	Year         int
	Month        int
	InputTokens  int64
	OutputTokens int64
	Approximate  bool
}

// UsageStore accumulates token usage into monthly rows.
type UsageStore interface {
	// Record upserts the (agent, model, year, month) row, adding the sample's
	// tokens and recomputing costs from the model's pricing.
	Record(ctx context.Context, rec UsageRecord) error
}
