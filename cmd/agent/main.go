package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/hostmetry/agent/internal/collector"
	"github.com/hostmetry/agent/internal/config"
	"github.com/hostmetry/agent/internal/handler"
	"github.com/hostmetry/agent/internal/migration"
	"github.com/hostmetry/agent/internal/repository"
	"github.com/hostmetry/agent/internal/scheduler"
	"github.com/hostmetry/agent/internal/source"
)

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		log.Fatal("failed to parse configuration: ", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to create logger: ", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	storage, reconnect, monitorDB := buildStorage(cfg, logger)
	// The scheduler swaps the inner repository on reconnect; every other
	// consumer holds this one handle so it always reaches the live connection.
	shared := repository.NewShared(storage)
	defer shared.Close()
	if monitorDB != nil {
		defer monitorDB.Close()
	}

	collectors := buildCollectors(cfg, monitorDB, logger)

	sched := scheduler.New(shared, reconnect, collectors, scheduler.Config{
		ReportInterval:      func() time.Duration { return cfg.ReportInterval },
		MaxMetricAge:        func() time.Duration { return cfg.MaxMetricAge },
		CleanupEveryNCycles: cfg.CleanupEveryNCycles,
	}, logger)

	go func() {
		logger.Infof("debug endpoint listening on %s", cfg.DebugAddress)
		if err := http.ListenAndServe(cfg.DebugAddress, handler.Router(collectors, shared, logger)); err != nil {
			logger.Warnf("debug endpoint stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		// Storage is gone for good; exit and rely on the supervisor restart.
		logger.Fatalf("polling loop stopped: %v", err)
	}
	logger.Info("shutting down...")
}

// buildStorage connects the persistence layer. Without a DSN the agent keeps
// metrics in memory, useful for local inspection through the debug endpoint.
// The returned monitor handle is a separate connection pool for the postgres
// internals source, so storage reconnects do not invalidate it.
func buildStorage(cfg *config.Config, logger *zap.SugaredLogger) (repository.Repository, func(context.Context) (repository.Repository, error), *sql.DB) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database dsn configured, keeping metrics in memory")
		mem := repository.NewMemStorage()
		reconnect := func(context.Context) (repository.Repository, error) { return mem, nil }
		return mem, reconnect, nil
	}

	if err := migration.Run(cfg.DatabaseDSN, logger); err != nil {
		logger.Fatalf("failed to migrate database: %v", err)
	}

	storage, err := repository.NewDBStorage(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	reconnect := func(context.Context) (repository.Repository, error) {
		return repository.NewDBStorage(cfg.DatabaseDSN)
	}

	var monitorDB *sql.DB
	if cfg.DatabaseToMonitor != "" {
		monitorDB, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			logger.Warnf("failed to open monitoring connection, postgres source disabled: %v", err)
			monitorDB = nil
		}
	}
	return storage, reconnect, monitorDB
}

// buildCollectors registers every source in a fixed order; the scheduler
// polls them in this order on every cycle.
func buildCollectors(cfg *config.Config, monitorDB *sql.DB, logger *zap.SugaredLogger) []collector.Collector {
	host := cfg.Hostname

	collectors := []collector.Collector{
		collector.NewRateCollector(source.NewCPU(), host),
		collector.NewGaugeCollector(source.NewLoadAverage(), host),
		collector.NewGaugeCollector(source.NewMemory(), host),
		collector.NewRateCollector(source.NewDiskIO(), host),
		collector.NewGaugeCollector(source.NewFilesystem(), host),
		collector.NewRateCollector(source.NewNetwork(), host),
	}

	if docker, err := source.NewDocker(logger); err != nil {
		logger.Warnf("docker source disabled: %v", err)
	} else {
		collectors = append(collectors, collector.NewRateCollector(docker, host))
	}

	collectors = append(collectors,
		collector.NewRateCollector(source.NewNginx(cfg.NginxStatusEndpoint), host),
		collector.NewRateCollector(source.NewPostgres(monitorDB, cfg.DatabaseToMonitor), host),
	)
	return collectors
}
