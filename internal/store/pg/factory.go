// Package pg implements the store interfaces on Postgres through
// database/sql with the pgx stdlib driver.
package pg

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/roostlabs/roost/internal/store"
)

// OpenDB opens a pooled database handle on the pgx stdlib driver.
// The caller owns the handle and closes it on shutdown.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewStores creates all stores backed by Postgres on a shared handle.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Bots:     NewPGBotStore(db),
		Sessions: NewPGSessionStore(db),
		Usage:    NewPGUsageStore(db),
	}
}

// scanJSONList unmarshals a jsonb array column into dst. NULL or malformed
// values leave dst empty rather than failing the row.
func scanJSONList(raw []byte, dst *[]string) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// scanJSONMap is scanJSONList for jsonb object columns.
func scanJSONMap(raw []byte, dst *map[string]string) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// jsonValue marshals v for a jsonb parameter, never nil.
func jsonValue(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil || b == nil {
		return []byte("null")
	}
	return b
}
