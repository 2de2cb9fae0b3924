package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/engine/gemini"
	"github.com/roostlabs/roost/internal/httpapi"
	"github.com/roostlabs/roost/internal/runner"
	"github.com/roostlabs/roost/internal/state"
	"github.com/roostlabs/roost/internal/store"
	"github.com/roostlabs/roost/internal/store/pg"
	"github.com/roostlabs/roost/internal/supervisor"
	"github.com/roostlabs/roost/internal/worker"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot supervisor (the default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runSupervisor()
		},
	}
}

func runSupervisor() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(config.ResolvePath(cfgFile))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.PostgresDSN == "" {
		slog.Error("ROOST_POSTGRES_DSN is not set")
		os.Exit(1)
	}
	if cfg.State.RedisURL == "" {
		slog.Error("ROOST_REDIS_URL is not set")
		os.Exit(1)
	}
	if cfg.Engine.GeminiAPIKey == "" {
		slog.Error("ROOST_GEMINI_API_KEY is not set")
		os.Exit(1)
	}

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	stores := pg.NewStores(db)

	rdb, err := state.NewClient(cfg.State.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	lifecycle := state.New(rdb)
	lifecycle.OpTimeout = cfg.State.Timeout()
	defer lifecycle.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	if err := lifecycle.Ping(bootCtx); err != nil {
		slog.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	// A previous process may have died mid-flight; transitional states
	// left in redis would never converge on their own.
	if err := lifecycle.ResetAll(bootCtx); err != nil {
		slog.Error("failed to reset lifecycle state", "error", err)
		os.Exit(1)
	}

	loader := &store.Loader{
		Bots:          stores.Bots,
		SeedDMs:       cfg.Chat.DMAllowlist,
		SeedServers:   cfg.Chat.ServerAllowlist,
		DefaultPrefix: cfg.Chat.CommandPrefix,
		DefaultModel:  cfg.Engine.DefaultModel,
	}

	dispatched, err := dispatchAll(bootCtx, stores.Bots, loader, lifecycle)
	if err != nil {
		slog.Error("failed to dispatch configured bots", "error", err)
		os.Exit(1)
	}

	eng, err := gemini.New(bootCtx, cfg.Engine.GeminiAPIKey, stores.Sessions)
	if err != nil {
		slog.Error("failed to build agent engine", "error", err)
		os.Exit(1)
	}

	run := runner.New(eng, lifecycle, stores.Usage)
	run.EngineTimeout = cfg.Engine.RunTimeout()

	factory := func(init state.InitConfig, agent state.AgentConfig) (supervisor.Worker, error) {
		w, err := worker.New(init, agent, eng, run, worker.Options{
			Router:      cfg.Router.Options(),
			SendTimeout: cfg.Chat.SendBound(),
			SendRate:    rate.Limit(cfg.Chat.SendsPerSecond),
			SendBurst:   cfg.Chat.SendBurst,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	sup := supervisor.New(lifecycle, loader, stores.Bots, factory)
	sup.TickInterval = cfg.Supervisor.Tick()
	sup.StartTimeout = cfg.Supervisor.StartBound()
	sup.StopTimeout = cfg.Supervisor.StopBound()
	sup.Start()

	if cfg.HTTP.Token == "" {
		slog.Warn("ROOST_API_TOKEN not set, control API is unauthenticated")
	}
	api := httpapi.New(lifecycle, sup, loader, cfg.HTTP.Token)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		sup.Stop(stopCtx)
		stopCancel()

		cancel()
	}()

	slog.Info("roost starting",
		"version", Version,
		"addr", cfg.HTTP.Addr(),
		"bots", dispatched,
		"tick", cfg.Supervisor.Tick(),
	)

	if err := serveAPI(ctx, cfg.HTTP.Addr(), mux); err != nil {
		slog.Error("api server error", "error", err)
		os.Exit(1)
	}
}

// dispatchAll re-marks every configured bot for startup. A row with
// broken config is logged and skipped so one bad tenant cannot hold up
// the boot.
func dispatchAll(ctx context.Context, bots store.BotStore, loader *store.Loader, lc *state.Store) (int, error) {
	rows, err := bots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bots: %w", err)
	}

	dispatched := 0
	for _, row := range rows {
		botID := store.BotID(row.ID)
		init, agent, err := loader.BotConfigs(ctx, botID)
		if err != nil {
			slog.Error("skipping bot, config rows unreadable", "bot_id", botID, "error", err)
			continue
		}
		if err := lc.MarkShouldStart(ctx, botID, init, agent); err != nil {
			if state.IsConfigError(err) {
				slog.Error("skipping bot, invalid config", "bot_id", botID, "error", err)
				if perr := bots.SetErrorMessage(ctx, row.ID, err.Error()); perr != nil {
					slog.Warn("failed to persist config error", "bot_id", botID, "error", perr)
				}
				continue
			}
			return dispatched, fmt.Errorf("dispatch %s: %w", botID, err)
		}
		dispatched++
	}
	return dispatched, nil
}

// serveAPI blocks serving the control API until ctx is cancelled.
func serveAPI(ctx context.Context, addr string, mux *http.ServeMux) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
