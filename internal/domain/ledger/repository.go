package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementRepository defines persistence operations for the movement chain.
// List results are always in canonical order (invoice_id ASC, id ASC).
type MovementRepository interface {
	// Create inserts a new movement row.
	Create(ctx context.Context, m *StockMovement) error

	// GetByInvoice returns the movement for (product, invoice), or nil when
	// no such movement exists.
	GetByInvoice(ctx context.Context, productID id.ID, invoiceID int64) (*StockMovement, error)

	// UpdateLine overwrites quantity_change and unit_cost of a movement.
	// Running fields are left untouched; the recalculator rewrites them.
	UpdateLine(ctx context.Context, movementID id.ID, change types.Quantity, unitCost *types.Money) error

	// Delete removes a movement row.
	Delete(ctx context.Context, movementID id.ID) error

	// LastBefore returns the last movement for the product strictly before
	// invoiceID in canonical order, or nil when none exists.
	LastBefore(ctx context.Context, productID id.ID, invoiceID int64) (*StockMovement, error)

	// ListFrom returns all movements with invoice_id >= invoiceID.
	ListFrom(ctx context.Context, productID id.ID, invoiceID int64) ([]StockMovement, error)

	// ListFromDate returns all movements with invoice_date on or after the
	// given calendar day.
	ListFromDate(ctx context.Context, productID id.ID, from time.Time) ([]StockMovement, error)

	// SaveChain persists recomputed running fields (quantity_before,
	// quantity_after, avg_cost_after) for the given movements.
	SaveChain(ctx context.Context, movements []StockMovement) error

	// ListByProduct returns movement history for reporting.
	ListByProduct(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error)

	// ListProductIDs returns the distinct products present in the chain.
	ListProductIDs(ctx context.Context) ([]id.ID, error)
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// SnapshotRepository defines persistence operations for daily snapshots.
// Dates are calendar days at midnight UTC.
type SnapshotRepository interface {
	// LatestOnOrBefore returns the snapshot with the greatest date <= date,
	// or nil when the product has no snapshot that early.
	LatestOnOrBefore(ctx context.Context, productID id.ID, date time.Time) (*DailySnapshot, error)

	// Exists reports whether a snapshot row exists for (product, date).
	Exists(ctx context.Context, productID id.ID, date time.Time) (bool, error)

	// Insert creates a snapshot row. Fails on (product, date) duplicates.
	Insert(ctx context.Context, snap DailySnapshot) error

	// Upsert inserts or updates snapshot rows on the (product, date) key.
	Upsert(ctx context.Context, snaps []DailySnapshot) error

	// DeleteFrom removes all snapshots of the product with date >= from.
	DeleteFrom(ctx context.Context, productID id.ID, from time.Time) error

	// DeleteRange removes snapshots of the product with from <= date <= to.
	DeleteRange(ctx context.Context, productID id.ID, from, to time.Time) error

	// ListRange returns snapshots with from <= date <= to, date ascending.
	ListRange(ctx context.Context, productID id.ID, from, to time.Time) ([]DailySnapshot, error)

	// GapStarts detects calendar gaps per product: consecutive snapshot
	// dates more than one day apart, plus a trailing gap when the latest
	// date is before today. For each affected product it returns the
	// earliest existing snapshot date immediately preceding a gap, which
	// seeds the forward-fill span. An optional product filter narrows the
	// scan to one product.
	GapStarts(ctx context.Context, productID *id.ID, today time.Time) (map[id.ID]time.Time, error)

	// ListProductIDs returns the distinct products present in the table.
	ListProductIDs(ctx context.Context) ([]id.ID, error)
}

// ProductLocker serializes ledger mutations per product. Implementations
// hold the lock for the remainder of the enclosing transaction, so two
// recalculations (or a recalculation and a gap repair) for the same product
// cannot interleave.
type ProductLocker interface {
	LockProduct(ctx context.Context, productID id.ID) error
}
