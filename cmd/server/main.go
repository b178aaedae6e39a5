// Command server runs the ledger HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/config"
	"stockledger/internal/domain/ledger"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN())
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	// Repositories
	movementRepo := ledger_repo.NewMovementRepo(txManager)
	snapshotRepo := ledger_repo.NewSnapshotRepo(txManager)
	locker := postgres.NewAdvisoryLocker(txManager)

	// Domain services
	ledgerService := ledger.NewService(movementRepo, snapshotRepo, txManager)
	recalculator := ledger.NewRecalculator(movementRepo, snapshotRepo, locker, txManager)
	snapshotJob := ledger.NewSnapshotJob(movementRepo, snapshotRepo, txManager)
	gapRepairJob := ledger.NewGapRepairJob(snapshotRepo, locker, txManager)

	// HTTP
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Validator:    middleware.NewHMACValidator(cfg.JWT.Secret),
		Health:       handlers.NewHealthHandler(pool.Unwrap()),
		Ledger:       handlers.NewLedgerHandler(ledgerService, recalculator),
		Jobs:         handlers.NewJobsHandler(snapshotJob, gapRepairJob),
		DebugMode:    !cfg.IsProduction(),
		TrustedProxy: cfg.HTTP.TrustedProxy,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server starting", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Infow("server stopped")
	return nil
}
