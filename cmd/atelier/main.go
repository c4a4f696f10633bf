package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-erp/atelier/cmd/atelier/cli"
	"github.com/atelier-erp/atelier/internal/app"
	"github.com/atelier-erp/atelier/internal/auth"
	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
	"github.com/atelier-erp/atelier/internal/observability"
	"github.com/atelier-erp/atelier/internal/platform/cache"
	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/sales"
	"github.com/atelier-erp/atelier/internal/shared"
	"github.com/atelier-erp/atelier/jobs"
	"github.com/atelier-erp/atelier/migrations"
)

const usage = `usage: atelier [command]

commands:
  serve                     run the HTTP API (default)
  migrate                   apply pending database migrations
  jobs trigger <task>       enqueue stock:low_digest or sales:idempotency_cleanup
  jobs stats                print default queue depth
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Default().Error("atelier", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	if command == "help" || command == "-h" || command == "--help" {
		_, err := fmt.Fprint(out, usage)
		return err
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return migrations.Apply(ctx, pool, logger)
	case "jobs":
		return runJobs(ctx, cfg, args, out)
	default:
		_, _ = fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("jobs: expected trigger or stats")
	}
	jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(out)
		retention := fs.Duration("retention", cfg.IdempotencyRetention, "idempotency key retention")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("jobs trigger: expected exactly one task name")
		}
		info, err := jobsCLI.Trigger(ctx, fs.Arg(0), cli.TriggerOptions{Retention: *retention})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := migrations.Apply(ctx, pool, logger); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(redisOpts(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.ManagerPIN)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	txOpts := db.TxOptions{LockTimeout: cfg.PGLockTimeout}
	auditLogger := shared.NewAuditLogger(pool)
	catalogStore := catalog.NewStore(pool)

	inventoryService := inventory.NewService(
		inventory.NewRepository(pool, txOpts),
		auditLogger,
		inventory.NewCache(redisClient, cfg.LowStockCacheTTL),
		jobClient,
		metrics,
		logger,
	)
	catalogService := catalog.NewService(catalogStore, auditLogger, inventoryService, logger)
	salesService := sales.NewService(
		sales.NewRepository(pool, txOpts),
		sales.NewResolver(catalogStore),
		inventoryService,
		metrics,
		sales.ServiceConfig{AllowBackorder: cfg.SalesAllowBackorder},
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		Database:         pool,
		Auth:             auth.Middleware{Verifier: verifier, Logger: logger},
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		SalesHandler:     sales.NewHandler(logger, salesService),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("version", app.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
