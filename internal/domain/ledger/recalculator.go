package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Recalculator rewrites a product's movement chain and derived snapshots
// after an invoice line is created, edited or deleted.
//
// Every operation runs as a single transaction and takes the per-product
// lock first; the invoice-editing layer calls Recalculate inside its own
// transaction so that the invoice mutation and the ledger rewrite commit or
// roll back together.
type Recalculator struct {
	movements MovementRepository
	snapshots SnapshotRepository
	locks     ProductLocker
	tx        tx.Manager
}

// NewRecalculator creates a new recalculator.
func NewRecalculator(movements MovementRepository, snapshots SnapshotRepository, locks ProductLocker, txm tx.Manager) *Recalculator {
	return &Recalculator{
		movements: movements,
		snapshots: snapshots,
		locks:     locks,
		tx:        txm,
	}
}

// RecalculateRequest describes an invoice-line mutation to apply to the chain.
type RecalculateRequest struct {
	ProductID id.ID
	InvoiceID int64
	Action    Action

	// NewQuantityChange and NewUnitCost replace the movement's values on
	// ActionEdit; ignored on ActionDelete.
	NewQuantityChange types.Quantity
	NewUnitCost       *types.Money
}

// Recalculate applies the requested mutation to the targeted movement, then
// recomputes running quantity and weighted-average cost for every later
// movement of the product and rebuilds daily snapshots from the invoice date
// forward.
//
// ActionEdit on a missing movement returns MOVEMENT_NOT_FOUND without any
// mutation. ActionDelete on a missing movement is a no-op: the chain is
// already in the state the delete asks for.
func (r *Recalculator) Recalculate(ctx context.Context, req RecalculateRequest) error {
	if req.Action != ActionEdit && req.Action != ActionDelete {
		return apperror.NewValidation(fmt.Sprintf("unknown action %q", req.Action))
	}

	return r.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.locks.LockProduct(ctx, req.ProductID); err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		target, err := r.movements.GetByInvoice(ctx, req.ProductID, req.InvoiceID)
		if err != nil {
			return fmt.Errorf("get movement: %w", err)
		}
		if target == nil {
			if req.Action == ActionEdit {
				return apperror.NewMovementNotFound(req.ProductID, req.InvoiceID)
			}
			logger.Info(ctx, "delete of absent movement ignored",
				"product_id", req.ProductID,
				"invoice_id", req.InvoiceID,
			)
			return nil
		}
		rebuildFrom := target.Date()

		switch req.Action {
		case ActionDelete:
			if err := r.movements.Delete(ctx, target.ID); err != nil {
				return fmt.Errorf("delete movement: %w", err)
			}
		case ActionEdit:
			if err := r.movements.UpdateLine(ctx, target.ID, req.NewQuantityChange, req.NewUnitCost); err != nil {
				return fmt.Errorf("update movement: %w", err)
			}
		}

		if err := r.recomputeFrom(ctx, req.ProductID, req.InvoiceID); err != nil {
			return err
		}
		if err := r.rebuildSnapshots(ctx, req.ProductID, rebuildFrom); err != nil {
			return err
		}

		logger.Info(ctx, "ledger recalculated",
			"product_id", req.ProductID,
			"invoice_id", req.InvoiceID,
			"action", req.Action,
			"rebuild_from", rebuildFrom.Format(time.DateOnly),
		)
		return nil
	})
}

// RegisterMovement appends a movement for a newly created invoice line and
// chains it in: running fields are computed from the preceding movement and
// the affected day's snapshot is upserted. Movements that arrive out of
// invoice-id order are handled the same way as an edit, by recomputing the
// chain tail from the insertion point.
func (r *Recalculator) RegisterMovement(ctx context.Context, productID id.ID, invoiceID int64, invoiceDate time.Time, change types.Quantity, unitCost *types.Money) (*StockMovement, error) {
	if change.IsZero() {
		return nil, apperror.NewValidation("quantity_change must be non-zero")
	}

	var created *StockMovement
	err := r.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.locks.LockProduct(ctx, productID); err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		existing, err := r.movements.GetByInvoice(ctx, productID, invoiceID)
		if err != nil {
			return fmt.Errorf("get movement: %w", err)
		}
		if existing != nil {
			return apperror.NewConflict("movement already exists for this invoice").
				WithDetail("product_id", productID).
				WithDetail("invoice_id", invoiceID)
		}

		m := NewStockMovement(productID, invoiceID, invoiceDate, change, unitCost)
		if err := r.movements.Create(ctx, &m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		if err := r.recomputeFrom(ctx, productID, invoiceID); err != nil {
			return err
		}

		// Refresh the closing snapshots for the affected dates. Unlike a
		// retroactive edit this never deletes rows: an append only changes
		// closings on days that have movements.
		tail, err := r.movements.ListFromDate(ctx, productID, m.Date())
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		if err := r.snapshots.Upsert(ctx, DailyClosings(tail)); err != nil {
			return fmt.Errorf("upsert snapshots: %w", err)
		}

		created, err = r.movements.GetByInvoice(ctx, productID, invoiceID)
		if err != nil {
			return fmt.Errorf("reload movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement registered",
		"product_id", productID,
		"invoice_id", invoiceID,
		"quantity_change", change,
	)
	return created, nil
}

// recomputeFrom rewrites running fields of every movement with
// invoice_id >= invoiceID, starting from the last untouched movement before
// the edit point (or the empty position when none exists).
func (r *Recalculator) recomputeFrom(ctx context.Context, productID id.ID, invoiceID int64) error {
	baseline := ZeroBaseline()
	prev, err := r.movements.LastBefore(ctx, productID, invoiceID)
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	if prev != nil {
		baseline = BaselineAfter(prev)
	}

	tail, err := r.movements.ListFrom(ctx, productID, invoiceID)
	if err != nil {
		return fmt.Errorf("list chain tail: %w", err)
	}
	if len(tail) == 0 {
		return nil
	}

	RecomputeChain(baseline, tail)

	if err := r.movements.SaveChain(ctx, tail); err != nil {
		return fmt.Errorf("save chain: %w", err)
	}
	return nil
}

// rebuildSnapshots replaces all snapshots of the product from the given day
// forward with closings re-derived from the surviving movements. Days at or
// after the edit point that no longer have movements end up without a row;
// the gap repair job restores those by carry-forward.
func (r *Recalculator) rebuildSnapshots(ctx context.Context, productID id.ID, from time.Time) error {
	if err := r.snapshots.DeleteFrom(ctx, productID, from); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}

	survivors, err := r.movements.ListFromDate(ctx, productID, from)
	if err != nil {
		return fmt.Errorf("list movements: %w", err)
	}
	if len(survivors) == 0 {
		return nil
	}

	if err := r.snapshots.Upsert(ctx, DailyClosings(survivors)); err != nil {
		return fmt.Errorf("upsert snapshots: %w", err)
	}
	return nil
}
