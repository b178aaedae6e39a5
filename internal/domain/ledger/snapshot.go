package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// CarryForwardResult reports what the daily snapshot job did.
type CarryForwardResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// SnapshotJob opens "today" for every product by carrying forward
// yesterday's ending position. It only ever inserts the missing today row,
// never mutates existing ones, so running it any number of times per day is
// safe: the existing-row check is the idempotency guard, not wall-clock
// exclusivity.
type SnapshotJob struct {
	movements MovementRepository
	snapshots SnapshotRepository
	tx        tx.Manager
	now       func() time.Time
}

// NewSnapshotJob creates the daily carry-forward job.
func NewSnapshotJob(movements MovementRepository, snapshots SnapshotRepository, txm tx.Manager) *SnapshotJob {
	return &SnapshotJob{
		movements: movements,
		snapshots: snapshots,
		tx:        txm,
		now:       time.Now,
	}
}

// WithClock overrides the job's clock. Used by tests and by backfill tooling.
func (j *SnapshotJob) WithClock(now func() time.Time) *SnapshotJob {
	j.now = now
	return j
}

// RunDailySnapshot inserts today's snapshot for every known product that
// does not have one yet, seeded from the most recent snapshot on or before
// yesterday, defaulting to an empty position for products never snapshotted.
func (j *SnapshotJob) RunDailySnapshot(ctx context.Context) (CarryForwardResult, error) {
	today := DateOf(j.now())
	yesterday := today.AddDate(0, 0, -1)

	var res CarryForwardResult
	err := j.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		products, err := j.knownProducts(ctx)
		if err != nil {
			return err
		}

		for _, productID := range products {
			exists, err := j.snapshots.Exists(ctx, productID, today)
			if err != nil {
				return fmt.Errorf("check snapshot: %w", err)
			}
			if exists {
				res.Skipped++
				continue
			}

			qty, cost := types.Zero(), types.Zero()
			last, err := j.snapshots.LatestOnOrBefore(ctx, productID, yesterday)
			if err != nil {
				return fmt.Errorf("load carry value: %w", err)
			}
			if last != nil {
				qty, cost = last.AvailableQty, last.AvgCost
			}

			now := time.Now().UTC()
			snap := DailySnapshot{
				ProductID:    productID,
				Date:         today,
				AvailableQty: qty,
				AvgCost:      cost,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := j.snapshots.Insert(ctx, snap); err != nil {
				return fmt.Errorf("insert snapshot: %w", err)
			}
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return CarryForwardResult{}, err
	}

	logger.Info(ctx, "daily snapshot carry-forward finished",
		"date", today.Format(time.DateOnly),
		"processed", res.Processed,
		"skipped", res.Skipped,
	)
	return res, nil
}

// knownProducts is the union of products seen in either table, sorted for
// deterministic processing order.
func (j *SnapshotJob) knownProducts(ctx context.Context) ([]id.ID, error) {
	fromMovements, err := j.movements.ListProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list movement products: %w", err)
	}
	fromSnapshots, err := j.snapshots.ListProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshot products: %w", err)
	}

	seen := make(map[id.ID]struct{}, len(fromMovements)+len(fromSnapshots))
	var products []id.ID
	for _, lst := range [][]id.ID{fromMovements, fromSnapshots} {
		for _, productID := range lst {
			if _, ok := seen[productID]; ok {
				continue
			}
			seen[productID] = struct{}{}
			products = append(products, productID)
		}
	}
	sort.Slice(products, func(a, b int) bool {
		return bytes.Compare(products[a][:], products[b][:]) < 0
	})
	return products, nil
}
