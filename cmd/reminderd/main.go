package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/club-reminders/internal/application"
	"github.com/example/club-reminders/internal/config"
	"github.com/example/club-reminders/internal/delivery"
	"github.com/example/club-reminders/internal/delivery/kafka"
	httptransport "github.com/example/club-reminders/internal/http"
	"github.com/example/club-reminders/internal/logging"
	"github.com/example/club-reminders/internal/metrics"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/memory"
	"github.com/example/club-reminders/internal/persistence/mongo"
	"github.com/example/club-reminders/internal/persistence/postgres"
	"github.com/example/club-reminders/internal/persistence/sqlite"
	"github.com/example/club-reminders/internal/persistence/sqlite/migration"
	"github.com/example/club-reminders/internal/runner"
)

const usage = `usage: reminderd [serve | migrate | hash-token <token>]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "hash-token":
		if len(args) != 2 {
			return errors.New(usage)
		}
		hash, err := application.HashAdminToken(args[1], application.DefaultArgon2idParams)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	case "migrate", "serve":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Store.Driver, "error", err)
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if command == "migrate" {
		logger.Info("storage prepared", "driver", cfg.Store.Driver)
		return nil
	}
	return serve(ctx, cfg, store, logger)
}

// openStore connects to the configured backend and brings its schema up to
// date.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if _, err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return store, nil
	case config.DriverMongo:
		store, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// newSink builds the delivery chain. The returned close func releases the
// Kafka client when one was created.
func newSink(cfg config.DeliveryConfig, feed persistence.NotificationFeed, logger *slog.Logger) (delivery.Sink, func(), error) {
	var (
		sink    delivery.Sink
		closeFn = func() {}
	)
	switch cfg.Sink {
	case config.SinkStore:
		sink = delivery.NewFeedSink(feed)
	case config.SinkKafka:
		client, err := kafka.NewClient(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		sink = kafka.New(client, cfg.KafkaTopic)
		closeFn = client.Close
	default:
		return nil, nil, fmt.Errorf("unsupported delivery sink %q", cfg.Sink)
	}

	opts := []delivery.DispatcherOption{delivery.WithLogger(logger)}
	if cfg.LocalAlerts {
		opts = append(opts, delivery.WithAlerter(delivery.NewLogAlerter(logger, cfg.AlertDedupeTTL)))
	}
	return delivery.NewDispatcher(sink, opts...), closeFn, nil
}

func serve(ctx context.Context, cfg config.Config, store persistence.Store, logger *slog.Logger) error {
	sink, closeSink, err := newSink(cfg.Delivery, store, logger)
	if err != nil {
		logger.Error("failed to build delivery sink", "sink", cfg.Delivery.Sink, "error", err)
		return err
	}
	defer closeSink()

	recorder := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	now := time.Now
	loc := cfg.Reminders.Location()
	policy := application.Policy{
		MaxRetries:   cfg.Reminders.MaxRetries,
		RetryBackoff: cfg.Reminders.RetryBackoff,
		Concurrency:  cfg.Reminders.SweepConcurrency,
	}

	scheduler := application.NewReminderSchedulerWithLogger(store, now, logger).WithMetrics(recorder).WithLocation(loc)
	notifier := application.NewImmediateNotifierWithLogger(sink, now, logger).WithMetrics(recorder).WithLocation(loc)
	sweeper := application.NewReminderSweeperWithLogger(store, sink, policy, now, logger).WithMetrics(recorder)
	janitor := application.NewRetentionJanitorWithLogger(store, now, logger).WithMetrics(recorder)

	sweeps := runner.NewPeriodic("reminder-sweep", cfg.Reminders.SweepInterval, func(ctx context.Context) error {
		_, err := sweeper.ProcessDue(ctx)
		return err
	}, runner.WithLogger(logger), runner.RunOnStart())
	cleanups := runner.NewPeriodic("retention-cleanup", cfg.Reminders.CleanupInterval, func(ctx context.Context) error {
		_, err := janitor.Cleanup(ctx, cfg.Reminders.Retention)
		return err
	}, runner.WithLogger(logger))

	var feed persistence.NotificationFeed
	if cfg.Delivery.Sink == config.SinkStore {
		feed = store
	}

	var verify httptransport.TokenVerifier
	if cfg.HTTP.AdminTokenHash != "" {
		verify = httptransport.Argon2idVerifier(cfg.HTTP.AdminTokenHash)
	} else {
		logger.Warn("admin token hash not configured; admin routes are disabled")
	}

	routerCfg := httptransport.RouterConfig{
		Reminders:  httptransport.NewReminderHandler(scheduler, notifier, store, feed, logger),
		Admin:      httptransport.NewAdminHandler(sweeper, janitor, cfg.Reminders.Retention, logger),
		AdminAuth:  httptransport.RequireAdminToken(verify, logger),
		Metrics:    promhttp.Handler(),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	}
	if checker, ok := store.(httptransport.HealthChecker); ok {
		routerCfg.Health = checker
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httptransport.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweeps.Start(ctx)
	cleanups.Start(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("reminder service listening",
		"addr", server.Addr,
		"store", cfg.Store.Driver,
		"sink", cfg.Delivery.Sink,
		"sweep_interval", cfg.Reminders.SweepInterval,
	)
	err = server.ListenAndServe()

	sweeps.Stop()
	cleanups.Stop()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		return err
	}
	return nil
}
