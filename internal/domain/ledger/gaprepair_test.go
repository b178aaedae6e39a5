package ledger

import (
	"context"
	"testing"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func seedSnapshot(snapshots *memSnapshotRepo, productID id.ID, d int, qty, cost string) {
	_ = snapshots.Insert(context.Background(), DailySnapshot{
		ProductID:    productID,
		Date:         day(d),
		AvailableQty: types.MustDecimal(qty),
		AvgCost:      types.MustDecimal(cost),
	})
}

func TestRunGapRepair_FillsInteriorAndTrailingGaps(t *testing.T) {
	snapshots := newMemSnapshotRepo()
	locker := &memLocker{}
	job := NewGapRepairJob(snapshots, locker, passTxManager{}).WithClock(fixedClock(day(8)))

	productID := id.New()
	seedSnapshot(snapshots, productID, 1, "100", "5")
	seedSnapshot(snapshots, productID, 5, "70", "5")

	res, err := job.RunGapRepair(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Days 2-4 and 6-8.
	if res.FilledRows != 6 {
		t.Errorf("expected 6 filled rows, got %d", res.FilledRows)
	}

	rows, _ := snapshots.ListRange(context.Background(), productID, day(1), day(8))
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	for _, row := range rows[:4] { // days 1-4
		if !row.AvailableQty.Equal(types.MustDecimal("100")) {
			t.Errorf("day %s: expected qty 100, got %s", row.Date.Format("2006-01-02"), row.AvailableQty)
		}
	}
	for _, row := range rows[4:] { // days 5-8
		if !row.AvailableQty.Equal(types.MustDecimal("70")) {
			t.Errorf("day %s: expected qty 70, got %s", row.Date.Format("2006-01-02"), row.AvailableQty)
		}
	}

	if len(locker.locked) != 1 || locker.locked[0] != productID {
		t.Errorf("expected product lock on %s, got %v", productID, locker.locked)
	}
}

func TestRunGapRepair_SecondRunDoesNothing(t *testing.T) {
	snapshots := newMemSnapshotRepo()
	job := NewGapRepairJob(snapshots, &memLocker{}, passTxManager{}).WithClock(fixedClock(day(8)))

	productID := id.New()
	seedSnapshot(snapshots, productID, 1, "100", "5")

	first, err := job.RunGapRepair(context.Background(), nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.FilledRows != 7 {
		t.Errorf("expected 7 filled rows, got %d", first.FilledRows)
	}

	second, err := job.RunGapRepair(context.Background(), nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.FilledRows != 0 {
		t.Errorf("expected idempotent second run, filled %d", second.FilledRows)
	}
}

func TestRunGapRepair_NoGaps(t *testing.T) {
	snapshots := newMemSnapshotRepo()
	locker := &memLocker{}
	job := NewGapRepairJob(snapshots, locker, passTxManager{}).WithClock(fixedClock(day(3)))

	productID := id.New()
	seedSnapshot(snapshots, productID, 1, "10", "2")
	seedSnapshot(snapshots, productID, 2, "10", "2")
	seedSnapshot(snapshots, productID, 3, "12", "2")

	res, err := job.RunGapRepair(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.FilledRows != 0 {
		t.Errorf("expected no fills, got %d", res.FilledRows)
	}
	if len(locker.locked) != 0 {
		t.Errorf("no product should have been locked, got %v", locker.locked)
	}
}

func TestRunGapRepair_SingleProductFilter(t *testing.T) {
	snapshots := newMemSnapshotRepo()
	job := NewGapRepairJob(snapshots, &memLocker{}, passTxManager{}).WithClock(fixedClock(day(4)))

	target := id.New()
	other := id.New()
	seedSnapshot(snapshots, target, 1, "10", "2")
	seedSnapshot(snapshots, other, 1, "99", "9")

	res, err := job.RunGapRepair(context.Background(), &target)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Days 2-4 for the target only.
	if res.FilledRows != 3 {
		t.Errorf("expected 3 filled rows, got %d", res.FilledRows)
	}

	otherRows, _ := snapshots.ListRange(context.Background(), other, day(1), day(4))
	if len(otherRows) != 1 {
		t.Errorf("other product should be untouched, got %d rows", len(otherRows))
	}
}

func TestRunGapRepair_PreservesExistingValuesInSpan(t *testing.T) {
	snapshots := newMemSnapshotRepo()
	job := NewGapRepairJob(snapshots, &memLocker{}, passTxManager{}).WithClock(fixedClock(day(5)))

	productID := id.New()
	seedSnapshot(snapshots, productID, 1, "100", "5")
	seedSnapshot(snapshots, productID, 3, "40", "6")

	if _, err := job.RunGapRepair(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Day 3 keeps its real value; days 4-5 carry it.
	rows, _ := snapshots.ListRange(context.Background(), productID, day(3), day(5))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if !row.AvailableQty.Equal(types.MustDecimal("40")) {
			t.Errorf("day %s: expected qty 40, got %s", row.Date.Format("2006-01-02"), row.AvailableQty)
		}
		if !row.AvgCost.Equal(types.MustDecimal("6")) {
			t.Errorf("day %s: expected cost 6, got %s", row.Date.Format("2006-01-02"), row.AvgCost)
		}
	}
}
