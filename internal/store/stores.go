// Package store defines the Postgres-backed storage interfaces: bot and
// agent configuration rows, engine session transcripts, and the monthly
// token-usage sink. Implementations live in store/pg.
package store

// Stores is the top-level container for all storage backends.
type Stores struct {
	Bots     BotStore
	Sessions SessionStore
	Usage    UsageStore
}
