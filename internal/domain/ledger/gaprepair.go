package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// GapRepairResult reports how many missing calendar days were filled.
type GapRepairResult struct {
	FilledRows int `json:"filledRows"`
}

// GapRepairJob detects missing calendar days in the snapshot table and
// restores them by last-observation-carried-forward over a generated
// calendar axis. A product's repair span runs from the snapshot preceding
// its earliest gap through today; rows inside the span are buffered in
// memory, regenerated day by day and written back in one transaction. The
// buffer lives only for the invocation.
type GapRepairJob struct {
	snapshots SnapshotRepository
	locks     ProductLocker
	tx        tx.Manager
	now       func() time.Time
}

// NewGapRepairJob creates the forward-fill repair job.
func NewGapRepairJob(snapshots SnapshotRepository, locks ProductLocker, txm tx.Manager) *GapRepairJob {
	return &GapRepairJob{
		snapshots: snapshots,
		locks:     locks,
		tx:        txm,
		now:       time.Now,
	}
}

// WithClock overrides the job's clock. Used by tests.
func (j *GapRepairJob) WithClock(now func() time.Time) *GapRepairJob {
	j.now = now
	return j
}

// RunGapRepair repairs snapshot gaps for one product, or for every product
// when productID is nil. With no gaps anywhere it returns immediately
// without touching the table, which also makes back-to-back runs idempotent.
func (j *GapRepairJob) RunGapRepair(ctx context.Context, productID *id.ID) (GapRepairResult, error) {
	today := DateOf(j.now())

	var res GapRepairResult
	err := j.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		gaps, err := j.snapshots.GapStarts(ctx, productID, today)
		if err != nil {
			return fmt.Errorf("detect gaps: %w", err)
		}
		if len(gaps) == 0 {
			return nil
		}

		for _, productID := range sortedKeys(gaps) {
			filled, err := j.repairProduct(ctx, productID, gaps[productID], today)
			if err != nil {
				return fmt.Errorf("repair product %s: %w", productID, err)
			}
			res.FilledRows += filled
		}
		return nil
	})
	if err != nil {
		return GapRepairResult{}, err
	}

	if res.FilledRows > 0 {
		logger.Info(ctx, "snapshot gaps repaired",
			"filled_rows", res.FilledRows,
			"through", today.Format(time.DateOnly),
		)
	}
	return res, nil
}

// repairProduct regenerates the full calendar in [spanStart, today] for one
// product: existing rows keep their values, missing days carry the last
// earlier value forward.
func (j *GapRepairJob) repairProduct(ctx context.Context, productID id.ID, spanStart, today time.Time) (int, error) {
	if err := j.locks.LockProduct(ctx, productID); err != nil {
		return 0, fmt.Errorf("lock product: %w", err)
	}

	existing, err := j.snapshots.ListRange(ctx, productID, spanStart, today)
	if err != nil {
		return 0, fmt.Errorf("buffer span: %w", err)
	}

	rows, filled := ForwardFill(productID, existing, spanStart, today)
	if filled == 0 {
		return 0, nil
	}

	// The delete is transient: the span was buffered above and every date
	// in it is rewritten by the upsert that follows, inside the same
	// transaction.
	if err := j.snapshots.DeleteRange(ctx, productID, spanStart, today); err != nil {
		return 0, fmt.Errorf("clear span: %w", err)
	}
	if err := j.snapshots.Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("write span: %w", err)
	}
	return filled, nil
}

func sortedKeys(m map[id.ID]time.Time) []id.ID {
	keys := make([]id.ID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		return bytes.Compare(keys[a][:], keys[b][:]) < 0
	})
	return keys
}
