package postgres

import (
	"context"
	"fmt"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Compile-time check that AdvisoryLocker implements ledger.ProductLocker.
var _ ledger.ProductLocker = (*AdvisoryLocker)(nil)

// AdvisoryLocker serializes ledger mutations per product with
// pg_advisory_xact_lock. The lock is scoped to the current transaction and
// released automatically on commit or rollback, so a recalculation and a gap
// repair touching the same product queue behind each other while different
// products proceed in parallel.
type AdvisoryLocker struct {
	txManager *TxManager
}

// NewAdvisoryLocker creates a new advisory locker.
func NewAdvisoryLocker(txManager *TxManager) *AdvisoryLocker {
	return &AdvisoryLocker{txManager: txManager}
}

// LockProduct blocks until the per-product lock is granted. Must be called
// inside a transaction; the lock lives until that transaction ends.
func (l *AdvisoryLocker) LockProduct(ctx context.Context, productID id.ID) error {
	tx := l.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("LockProduct requires transaction context")
	}

	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", productID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
