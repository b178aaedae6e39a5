package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

type recalcFixture struct {
	movements *memMovementRepo
	snapshots *memSnapshotRepo
	locker    *memLocker
	recalc    *Recalculator
}

func newRecalcFixture() *recalcFixture {
	movements := &memMovementRepo{}
	snapshots := newMemSnapshotRepo()
	locker := &memLocker{}
	return &recalcFixture{
		movements: movements,
		snapshots: snapshots,
		locker:    locker,
		recalc:    NewRecalculator(movements, snapshots, locker, passTxManager{}),
	}
}

func (f *recalcFixture) register(t *testing.T, productID id.ID, invoiceID int64, date time.Time, change, unitCost string) *StockMovement {
	t.Helper()
	var cost *types.Money
	if unitCost != "" {
		c := types.MustDecimal(unitCost)
		cost = &c
	}
	m, err := f.recalc.RegisterMovement(context.Background(), productID, invoiceID, date, types.MustDecimal(change), cost)
	if err != nil {
		t.Fatalf("register movement %d: %v", invoiceID, err)
	}
	return m
}

func (f *recalcFixture) chain(t *testing.T, productID id.ID) []StockMovement {
	t.Helper()
	chain, err := f.movements.ListFrom(context.Background(), productID, 0)
	if err != nil {
		t.Fatalf("list chain: %v", err)
	}
	return chain
}

func TestRegisterMovement_BuildsChain(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()

	f.register(t, productID, 1, day(1), "10", "5")
	m := f.register(t, productID, 2, day(2), "10", "7")

	if !m.QuantityBefore.Equal(types.MustDecimal("10")) {
		t.Errorf("expected quantity_before 10, got %s", m.QuantityBefore)
	}
	if !m.QuantityAfter.Equal(types.MustDecimal("20")) {
		t.Errorf("expected quantity_after 20, got %s", m.QuantityAfter)
	}
	if m.AvgCostAfter == nil || !m.AvgCostAfter.Equal(types.MustDecimal("6")) {
		t.Errorf("expected avg_cost_after 6, got %v", m.AvgCostAfter)
	}

	// Each affected day got its closing snapshot.
	snap, _ := f.snapshots.LatestOnOrBefore(context.Background(), productID, day(2))
	if snap == nil {
		t.Fatal("expected snapshot for day 2")
	}
	if !snap.AvailableQty.Equal(types.MustDecimal("20")) {
		t.Errorf("expected snapshot qty 20, got %s", snap.AvailableQty)
	}
}

func TestRegisterMovement_RejectsZeroChange(t *testing.T) {
	f := newRecalcFixture()

	_, err := f.recalc.RegisterMovement(context.Background(), id.New(), 1, day(1), types.Zero(), nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Errorf("expected %s, got %v", apperror.CodeValidation, err)
	}
}

func TestRegisterMovement_ConflictOnDuplicateInvoice(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()
	f.register(t, productID, 1, day(1), "10", "5")

	_, err := f.recalc.RegisterMovement(context.Background(), productID, 1, day(1), types.MustDecimal("5"), nil)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeConflict {
		t.Errorf("expected %s, got %v", apperror.CodeConflict, err)
	}
}

func TestRegisterMovement_OutOfOrderRecomputesTail(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()

	f.register(t, productID, 1, day(1), "10", "5")
	f.register(t, productID, 3, day(3), "-5", "")
	// Invoice 2 arrives late.
	f.register(t, productID, 2, day(2), "10", "7")

	chain := f.chain(t, productID)
	if len(chain) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(chain))
	}
	// Tail after the insertion point was rewritten.
	last := chain[2]
	if last.InvoiceID != 3 {
		t.Fatalf("expected invoice 3 last, got %d", last.InvoiceID)
	}
	if !last.QuantityBefore.Equal(types.MustDecimal("20")) {
		t.Errorf("expected quantity_before 20, got %s", last.QuantityBefore)
	}
	if last.AvgCostAfter == nil || !last.AvgCostAfter.Equal(types.MustDecimal("6")) {
		t.Errorf("expected avg_cost_after 6, got %v", last.AvgCostAfter)
	}
}

func TestRecalculate_EditRewritesTailAndSnapshots(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()

	f.register(t, productID, 1, day(1), "10", "5")
	f.register(t, productID, 2, day(2), "10", "7")
	f.register(t, productID, 3, day(3), "-5", "")

	// The day-2 receipt was actually 20 units at 8.00.
	newCost := types.MustDecimal("8")
	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID:         productID,
		InvoiceID:         2,
		Action:            ActionEdit,
		NewQuantityChange: types.MustDecimal("20"),
		NewUnitCost:       &newCost,
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	chain := f.chain(t, productID)
	// (10*5 + 20*8) / 30 = 7.00
	if !chain[1].QuantityAfter.Equal(types.MustDecimal("30")) {
		t.Errorf("expected quantity_after 30, got %s", chain[1].QuantityAfter)
	}
	if chain[1].AvgCostAfter == nil || !chain[1].AvgCostAfter.Equal(types.MustDecimal("7")) {
		t.Errorf("expected avg_cost_after 7, got %v", chain[1].AvgCostAfter)
	}
	if !chain[2].QuantityAfter.Equal(types.MustDecimal("25")) {
		t.Errorf("expected quantity_after 25, got %s", chain[2].QuantityAfter)
	}

	// Movement before the edit point is untouched.
	if !chain[0].QuantityAfter.Equal(types.MustDecimal("10")) {
		t.Errorf("expected quantity_after 10, got %s", chain[0].QuantityAfter)
	}

	// Snapshots from the edited day forward reflect the rewrite.
	snap, _ := f.snapshots.LatestOnOrBefore(context.Background(), productID, day(3))
	if snap == nil || !snap.AvailableQty.Equal(types.MustDecimal("25")) {
		t.Errorf("expected day-3 snapshot qty 25, got %+v", snap)
	}
}

func TestRecalculate_EditMissingMovement(t *testing.T) {
	f := newRecalcFixture()

	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID:         id.New(),
		InvoiceID:         99,
		Action:            ActionEdit,
		NewQuantityChange: types.MustDecimal("1"),
	})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeMovementNotFound {
		t.Errorf("expected %s, got %v", apperror.CodeMovementNotFound, err)
	}
}

func TestRecalculate_DeleteMissingMovementIsNoop(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()
	f.register(t, productID, 1, day(1), "10", "5")
	before := f.chain(t, productID)

	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: productID,
		InvoiceID: 99,
		Action:    ActionDelete,
	})
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}

	after := f.chain(t, productID)
	if len(after) != len(before) {
		t.Errorf("chain changed: %d -> %d movements", len(before), len(after))
	}
}

func TestRecalculate_DeleteRemovesAndRewrites(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()

	f.register(t, productID, 1, day(1), "10", "5")
	f.register(t, productID, 2, day(2), "10", "7")
	f.register(t, productID, 3, day(3), "-5", "")

	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: productID,
		InvoiceID: 2,
		Action:    ActionDelete,
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	chain := f.chain(t, productID)
	if len(chain) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(chain))
	}
	// Invoice 3 now chains directly after invoice 1.
	if !chain[1].QuantityBefore.Equal(types.MustDecimal("10")) {
		t.Errorf("expected quantity_before 10, got %s", chain[1].QuantityBefore)
	}
	if !chain[1].QuantityAfter.Equal(types.MustDecimal("5")) {
		t.Errorf("expected quantity_after 5, got %s", chain[1].QuantityAfter)
	}
	if chain[1].AvgCostAfter == nil || !chain[1].AvgCostAfter.Equal(types.MustDecimal("5")) {
		t.Errorf("expected avg_cost_after 5, got %v", chain[1].AvgCostAfter)
	}

	// The deleted movement's day has no movements left: its snapshot is gone
	// until gap repair restores it by carry-forward.
	exists, _ := f.snapshots.Exists(context.Background(), productID, day(2))
	if exists {
		t.Error("expected day-2 snapshot to be removed")
	}
}

func TestRecalculate_EditRoundTripRestoresChain(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()

	f.register(t, productID, 1, day(1), "10", "5")
	f.register(t, productID, 2, day(2), "10", "7")
	original := f.chain(t, productID)

	cost9 := types.MustDecimal("9")
	if err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: productID, InvoiceID: 2, Action: ActionEdit,
		NewQuantityChange: types.MustDecimal("3"), NewUnitCost: &cost9,
	}); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	cost7 := types.MustDecimal("7")
	if err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: productID, InvoiceID: 2, Action: ActionEdit,
		NewQuantityChange: types.MustDecimal("10"), NewUnitCost: &cost7,
	}); err != nil {
		t.Fatalf("second edit: %v", err)
	}

	restored := f.chain(t, productID)
	for i := range original {
		if !original[i].QuantityAfter.Equal(restored[i].QuantityAfter) {
			t.Errorf("movement %d quantity_after: %s != %s", i, original[i].QuantityAfter, restored[i].QuantityAfter)
		}
		if !original[i].AvgCostAfter.Equal(*restored[i].AvgCostAfter) {
			t.Errorf("movement %d avg_cost_after: %s != %s", i, original[i].AvgCostAfter, restored[i].AvgCostAfter)
		}
	}
}

func TestRecalculate_UnknownAction(t *testing.T) {
	f := newRecalcFixture()

	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: id.New(),
		InvoiceID: 1,
		Action:    Action("merge"),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeValidation {
		t.Errorf("expected %s, got %v", apperror.CodeValidation, err)
	}
}

func TestRecalculate_TakesProductLock(t *testing.T) {
	f := newRecalcFixture()
	productID := id.New()
	f.register(t, productID, 1, day(1), "10", "5")
	f.locker.locked = nil

	err := f.recalc.Recalculate(context.Background(), RecalculateRequest{
		ProductID: productID, InvoiceID: 1, Action: ActionDelete,
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if len(f.locker.locked) != 1 || f.locker.locked[0] != productID {
		t.Errorf("expected product lock on %s, got %v", productID, f.locker.locked)
	}
}
