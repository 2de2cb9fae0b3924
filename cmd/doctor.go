package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/state"
)

// requiredSchemaVersion is the migration version this binary expects.
const requiredSchemaVersion = 1

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("roost doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := config.ResolvePath(cfgFile)
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Secrets:")
	checkSecret("Postgres DSN", cfg.Database.PostgresDSN)
	checkSecret("Redis URL", cfg.State.RedisURL)
	checkSecret("Gemini key", cfg.Engine.GeminiAPIKey)
	checkSecret("API token", cfg.HTTP.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Database:")
	checkDatabase(ctx, cfg.Database.PostgresDSN)

	fmt.Println()
	fmt.Println("  State store:")
	checkRedis(ctx, cfg.State.RedisURL)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	switch {
	case value == "":
		fmt.Printf("    %-14s (not set)\n", name+":")
	case len(value) < 8:
		fmt.Printf("    %-14s (set)\n", name+":")
	default:
		masked := value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
		fmt.Printf("    %-14s %s\n", name+":", masked)
	}
}

func checkDatabase(ctx context.Context, dsn string) {
	if dsn == "" {
		fmt.Println("    (ROOST_POSTGRES_DSN not set)")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-14s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-14s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-14s connected\n", "Status:")

	var version int64
	var dirty bool
	err = db.QueryRowContext(ctx,
		"SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	switch {
	case err != nil:
		fmt.Printf("    %-14s none (run: roost migrate up)\n", "Schema:")
	case dirty:
		fmt.Printf("    %-14s v%d (DIRTY, run: roost migrate force %d)\n", "Schema:", version, version)
	case version == requiredSchemaVersion:
		fmt.Printf("    %-14s v%d (up to date)\n", "Schema:", version)
	case version < requiredSchemaVersion:
		fmt.Printf("    %-14s v%d (run: roost migrate up)\n", "Schema:", version)
	default:
		fmt.Printf("    %-14s v%d (binary too old, requires v%d)\n", "Schema:", version, requiredSchemaVersion)
	}

	var bots, agents int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bots").Scan(&bots); err == nil {
		fmt.Printf("    %-14s %d\n", "Bots:", bots)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents").Scan(&agents); err == nil {
		fmt.Printf("    %-14s %d\n", "Agents:", agents)
	}
}

func checkRedis(ctx context.Context, url string) {
	if url == "" {
		fmt.Println("    (ROOST_REDIS_URL not set)")
		return
	}
	rdb, err := state.NewClient(url)
	if err != nil {
		fmt.Printf("    %-14s BAD URL (%s)\n", "Status:", err)
		return
	}
	st := state.New(rdb)
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		fmt.Printf("    %-14s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-14s connected\n", "Status:")

	states, err := st.States(ctx)
	if err != nil || len(states) == 0 {
		return
	}
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("    %-14s %s\n", id+":", states[id])
	}
}
