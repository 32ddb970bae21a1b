// Command voxbridge is the main entry point for the Voxbridge voice
// assistant gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/jmolinaso/voxbridge/internal/analytics"
	"github.com/jmolinaso/voxbridge/internal/auth"
	"github.com/jmolinaso/voxbridge/internal/broker"
	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/classify/cache"
	"github.com/jmolinaso/voxbridge/internal/config"
	"github.com/jmolinaso/voxbridge/internal/convo"
	"github.com/jmolinaso/voxbridge/internal/gateway"
	"github.com/jmolinaso/voxbridge/internal/health"
	"github.com/jmolinaso/voxbridge/internal/observe"
	"github.com/jmolinaso/voxbridge/internal/queue"
	"github.com/jmolinaso/voxbridge/internal/tools/aiproviders"
	"github.com/jmolinaso/voxbridge/internal/tools/document"
	"github.com/jmolinaso/voxbridge/internal/tools/email"
	"github.com/jmolinaso/voxbridge/internal/tools/search"
	"github.com/jmolinaso/voxbridge/internal/tools/voice"
	"github.com/jmolinaso/voxbridge/internal/workflow"
	"github.com/jmolinaso/voxbridge/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxbridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"version", cfg.Server.Version,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetryShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: cfg.Server.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create instruments", "err", err)
		return 1
	}

	// ── Shared KV (optional) ──────────────────────────────────────────────────
	var rdb redis.Cmdable
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Every Redis consumer degrades to local-only state, so a dead
			// KV at boot is not fatal.
			slog.Warn("redis unreachable, continuing with local state", "addr", cfg.Redis.Addr, "err", err)
		} else {
			rdb = client
			slog.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}

	// ── Profile storage (optional) ────────────────────────────────────────────
	var profiles analytics.ProfileStore
	var pool *pgxpool.Pool
	if cfg.Analytics.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Analytics.PostgresDSN)
		if err != nil {
			slog.Error("failed to open postgres pool", "err", err)
			return 1
		}
		defer pool.Close()
		store := analytics.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate analytics schema", "err", err)
			return 1
		}
		profiles = store
		slog.Info("postgres connected")
	}

	// ── Classification pipeline ───────────────────────────────────────────────
	classifier := classify.New(classify.Options{Logger: logger})
	classCache := cache.New(cache.Options{
		Size:   cfg.Classify.CacheSize,
		TTL:    cfg.Classify.CacheTTL,
		Redis:  rdb,
		Logger: logger,
	})
	contexts := convo.NewStore(convo.Options{
		MaxContexts: cfg.Context.MaxContexts,
		MaxHistory:  cfg.Context.MaxHistory,
		IdleExpiry:  cfg.Context.IdleExpiry,
		Redis:       rdb,
		Logger:      logger,
	})
	go contexts.Run(ctx, 0)

	// ── Tool broker ───────────────────────────────────────────────────────────
	brk := broker.New(logger)
	brk.Register(document.New(document.Options{
		OutputDir: cfg.Tools.Document.OutputDir,
		Logger:    logger,
	}))
	brk.Register(email.New(email.Options{
		SMTP: email.SMTPConfig{
			Host:     cfg.Tools.Email.SMTPHost,
			Port:     cfg.Tools.Email.SMTPPort,
			Username: cfg.Tools.Email.Username,
			Password: cfg.Tools.Email.Password,
			From:     cfg.Tools.Email.From,
		},
		Redis:  rdb,
		Logger: logger,
	}))
	brk.Register(search.New(search.Options{
		BingKey:  cfg.Tools.Search.BingKey,
		SerpKey:  cfg.Tools.Search.SerpKey,
		CacheTTL: cfg.Tools.Search.CacheTTL,
		Redis:    rdb,
		Logger:   logger,
	}))
	brk.Register(aiproviders.New(aiproviders.Options{
		Keys:            cfg.Tools.AI.Providers,
		DefaultProvider: cfg.Tools.AI.DefaultProvider,
		Redis:           rdb,
		Logger:          logger,
	}))
	brk.Register(voice.New(voice.Options{
		OpenAIKey: cfg.Tools.Voice.OpenAIKey,
		TTSVoice:  cfg.Tools.Voice.TTSVoice,
		Logger:    logger,
	}))
	for _, remote := range cfg.Tools.Remote {
		brk.Register(broker.NewRemoteTool(broker.RemoteConfig{
			Name:      remote.Name,
			Transport: remote.Transport,
			Command:   remote.Command,
			URL:       remote.URL,
			Env:       remote.Env,
		}))
	}
	brk.StartAll(ctx)

	// ── Workflow engine ───────────────────────────────────────────────────────
	engine, err := workflow.NewEngine(workflow.Options{
		Classifier:  classifier,
		Cache:       classCache,
		Contexts:    contexts,
		Dispatcher:  broker.StepDispatcher{Broker: brk},
		StepTimeout: cfg.Workflow.StepTimeout,
		MaxRetries:  cfg.Workflow.MaxRetries,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("failed to build workflow engine", "err", err)
		return 1
	}

	// ── Session multiplexer ───────────────────────────────────────────────────
	sessions := ws.New(ws.Options{
		Redis:         rdb,
		Logger:        logger,
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		SweepInterval: cfg.Sessions.JanitorInterval,
	})
	sessions.StartJanitor(ctx)

	// ── Analytics sink ────────────────────────────────────────────────────────
	sink := analytics.New(analytics.Options{
		BufferSize: cfg.Analytics.BufferSize,
		BatchSize:  cfg.Analytics.BatchSize,
		Retention:  cfg.Analytics.Retention,
		Store:      profiles,
		Logger:     logger,
	})
	go sink.Run(ctx)

	// ── Authenticator ─────────────────────────────────────────────────────────
	authn, err := auth.New(auth.Config{
		Secret:         cfg.Auth.Secret,
		APIKeys:        cfg.Auth.APIKeys,
		ServiceKeys:    serviceKeys(cfg.Tools.AI.Providers),
		Lifetime:       cfg.Auth.TokenLifetime,
		MobileLifetime: cfg.Auth.MobileTokenLifetime,
	})
	if err != nil {
		slog.Error("failed to build authenticator", "err", err)
		return 1
	}

	// ── Health probes ─────────────────────────────────────────────────────────
	checkers := []health.Checker{
		{Name: "tools", Check: func(ctx context.Context) error {
			for _, d := range brk.StatusAll(ctx) {
				if d.Status != broker.StatusRunning {
					return fmt.Errorf("tool %s is %s", d.Name, d.Status)
				}
			}
			return nil
		}},
	}
	if rdb != nil {
		checkers = append(checkers, health.Checker{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if pool != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pool.Ping})
	}
	probes := health.New(cfg.Server.Version, sessions.Count, checkers...)

	// ── Gateway ───────────────────────────────────────────────────────────────
	srv, err := gateway.New(gateway.Options{
		Auth:       authn,
		Engine:     engine,
		Classifier: classifier,
		Contexts:   contexts,
		Broker:     brk,
		Sessions:   sessions,
		Analytics:  sink,
		Health:     probes,
		Metrics:    metrics,
		Queue: queue.Options{
			Capacity:     cfg.Queue.Capacity,
			BatchSize:    cfg.Queue.BatchSize,
			BatchTimeout: cfg.Queue.BatchTimeout,
		},
		Logger:  logger,
		Version: cfg.Server.Version,
	})
	if err != nil {
		slog.Error("failed to build gateway", "err", err)
		return 1
	}
	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, rdb != nil, pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		slog.Error("listen error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	// Stop accepting requests first, then notify and drop live sessions,
	// then stop the tools they were talking to.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	sessions.Shutdown(shutdownCtx)
	brk.Shutdown(shutdownCtx)
	if err := telemetryShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// serviceKeys lists the configured AI provider keys so the authenticator
// accepts them for token issuance.
func serviceKeys(providers map[string]string) []string {
	keys := make([]string, 0, len(providers))
	for _, key := range providers {
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, redisUp, postgresUp bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voxbridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Version", cfg.Server.Version)
	printRow("Redis", onOff(redisUp))
	printRow("Postgres", onOff(postgresUp))
	printRow("AI providers", fmt.Sprintf("%d", len(cfg.Tools.AI.Providers)))
	printRow("Remote tools", fmt.Sprintf("%d", len(cfg.Tools.Remote)))
	printRow("API keys", fmt.Sprintf("%d", len(cfg.Auth.APIKeys)))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func onOff(up bool) string {
	if up {
		return "connected"
	}
	return "(disabled)"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
