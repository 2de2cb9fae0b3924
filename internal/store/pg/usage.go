package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/roostlabs/roost/internal/catalog"
	"github.com/roostlabs/roost/internal/store"
)

// PGUsageStore implements store.UsageStore backed by Postgres.
type PGUsageStore struct {
	db *sql.DB
}

func NewPGUsageStore(db *sql.DB) *PGUsageStore {
	return &PGUsageStore{db: db}
}

// Record accumulates one sample into the monthly (agent, model) row. Costs
// are priced per sample from the catalog so later price changes do not
// rewrite history. Unknown models price at zero.
func (s *PGUsageStore) Record(ctx context.Context, rec store.UsageRecord) error {
	now := time.Now()
	if rec.Year == 0 {
		rec.Year = now.Year()
	}
	if rec.Month == 0 {
		rec.Month = int(now.Month())
	}

	inPrice, outPrice := catalog.Pricing(rec.ModelName)
	inputCost := float64(rec.InputTokens) * inPrice / 1_000_000
	outputCost := float64(rec.OutputTokens) * outPrice / 1_000_000

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage (agent_id, agent_name, model_name, year, month,
		   input_tokens, output_tokens, total_tokens,
		   input_cost, output_cost, total_cost, approximate, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (agent_id, model_name, year, month) DO UPDATE SET
		   agent_name = EXCLUDED.agent_name,
		   input_tokens = token_usage.input_tokens + EXCLUDED.input_tokens,
		   output_tokens = token_usage.output_tokens + EXCLUDED.output_tokens,
		   total_tokens = token_usage.total_tokens + EXCLUDED.total_tokens,
		   input_cost = token_usage.input_cost + EXCLUDED.input_cost,
		   output_cost = token_usage.output_cost + EXCLUDED.output_cost,
		   total_cost = token_usage.total_cost + EXCLUDED.total_cost,
		   approximate = token_usage.approximate OR EXCLUDED.approximate,
		   updated_at = EXCLUDED.updated_at`,
		rec.AgentID, rec.AgentName, rec.ModelName, rec.Year, rec.Month,
		rec.InputTokens, rec.OutputTokens, rec.InputTokens+rec.OutputTokens,
		inputCost, outputCost, inputCost+outputCost, rec.Approximate, now)
	return err
}
