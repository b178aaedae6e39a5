// Command worker runs the scheduled ledger maintenance jobs: the daily
// snapshot carry-forward and the snapshot gap repair. Multiple worker
// replicas may run; a Redis lock ensures each job executes once per day
// across the fleet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/pkg/logger"
)

const (
	carryForwardLockKey = "stockledger:jobs:carry-forward"
	gapRepairLockKey    = "stockledger:jobs:gap-repair"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	txManager := postgres.NewTxManager(pool)
	movementRepo := ledger_repo.NewMovementRepo(txManager)
	snapshotRepo := ledger_repo.NewSnapshotRepo(txManager)
	locker := postgres.NewAdvisoryLocker(txManager)

	w := &worker{
		cfg:          cfg,
		log:          log,
		locks:        redislock.New(redisClient),
		snapshotJob:  ledger.NewSnapshotJob(movementRepo, snapshotRepo, txManager),
		gapRepairJob: ledger.NewGapRepairJob(snapshotRepo, locker, txManager),
	}

	return w.loop(ctx)
}

type worker struct {
	cfg          *config.Config
	log          *logger.Logger
	locks        *redislock.Client
	snapshotJob  *ledger.SnapshotJob
	gapRepairJob *ledger.GapRepairJob
}

// loop sleeps until the configured wall-clock time, runs both jobs, then
// waits for the next day. Both jobs are idempotent, so a restart that
// causes an extra run within the same day is harmless.
func (w *worker) loop(ctx context.Context) error {
	loc, err := time.LoadLocation(w.cfg.Jobs.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	w.log.Infow("worker started",
		"run_at", w.cfg.Jobs.RunAt,
		"timezone", w.cfg.Jobs.Timezone,
	)

	for {
		wait := untilNextRun(time.Now().In(loc), w.cfg.Jobs.RunAt)
		w.log.Infow("next run scheduled", "in", wait.Round(time.Second).String())

		select {
		case <-ctx.Done():
			w.log.Infow("worker stopped")
			return nil
		case <-time.After(wait):
		}

		w.runOnce(ctx)
	}
}

func (w *worker) runOnce(ctx context.Context) {
	w.withLock(ctx, carryForwardLockKey, "daily_snapshot", func(jobCtx context.Context) error {
		result, err := w.snapshotJob.RunDailySnapshot(jobCtx)
		if err != nil {
			return err
		}
		logger.Info(jobCtx, "carry-forward finished",
			"processed", result.Processed,
			"skipped", result.Skipped,
		)
		return nil
	})

	w.withLock(ctx, gapRepairLockKey, "gap_repair", func(jobCtx context.Context) error {
		result, err := w.gapRepairJob.RunGapRepair(jobCtx, nil)
		if err != nil {
			return err
		}
		logger.Info(jobCtx, "gap repair finished", "filled_rows", result.FilledRows)
		return nil
	})
}

// withLock runs fn under a fleet-wide Redis lock. A lock held elsewhere
// means another replica is already running the job; skip quietly.
func (w *worker) withLock(ctx context.Context, key, jobName string, fn func(ctx context.Context) error) {
	jobCtx := appctx.WithJob(ctx, jobName)

	lock, err := w.locks.Obtain(jobCtx, key, w.cfg.Jobs.LockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Info(jobCtx, "job lock held by another replica, skipping")
		return
	}
	if err != nil {
		logger.Error(jobCtx, "obtain job lock", "error", err)
		return
	}
	defer func() { _ = lock.Release(context.WithoutCancel(jobCtx)) }()

	start := time.Now()
	if err := fn(jobCtx); err != nil {
		logger.Error(jobCtx, "job failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
}

// untilNextRun returns the duration from now to the next occurrence of
// the HH:MM wall-clock time, in now's location.
func untilNextRun(now time.Time, runAt string) time.Duration {
	at, _ := time.Parse("15:04", runAt)
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
