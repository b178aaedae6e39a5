// Package ledger provides the inventory position and valuation ledger:
// a per-product chain of quantity movements with running weighted-average
// cost, and materialized daily snapshots derived from it.
package ledger

import (
	"bytes"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Action is the invoice-line mutation the recalculator reacts to.
type Action string

const (
	// ActionEdit overwrites quantity_change/unit_cost of an existing movement.
	ActionEdit Action = "edit"
	// ActionDelete removes the movement from the chain.
	ActionDelete Action = "delete"
)

// StockMovement is one quantity-changing ledger entry tied to one invoice
// line for one product.
//
// Canonical chronological order for a product is (invoice_id ASC, id ASC).
// This assumes invoice_id grows monotonically with invoice_date; the id
// tie-break is stable because ids are UUIDv7 (time-ordered).
type StockMovement struct {
	ID          id.ID     `db:"id" json:"id"`
	ProductID   id.ID     `db:"product_id" json:"productId"`
	InvoiceID   int64     `db:"invoice_id" json:"invoiceId"`
	InvoiceDate time.Time `db:"invoice_date" json:"invoiceDate"`

	// QuantityBefore/QuantityAfter are the running position around this
	// movement; QuantityChange is signed (positive = stock in).
	QuantityBefore types.Quantity `db:"quantity_before" json:"quantityBefore"`
	QuantityChange types.Quantity `db:"quantity_change" json:"quantityChange"`
	QuantityAfter  types.Quantity `db:"quantity_after" json:"quantityAfter"`

	// UnitCost is set only for incoming movements with a known per-unit cost.
	UnitCost *types.Money `db:"unit_cost" json:"unitCost,omitempty"`

	// AvgCostAfter is the weighted-average unit cost in effect immediately
	// after this movement. It changes only on incoming movements with a
	// known unit cost.
	AvgCostAfter *types.Money `db:"avg_cost_after" json:"avgCostAfter,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockMovement creates an unchained movement for an invoice line.
// Running fields (QuantityBefore/After, AvgCostAfter) are assigned when the
// movement is appended to the chain.
func NewStockMovement(productID id.ID, invoiceID int64, invoiceDate time.Time, change types.Quantity, unitCost *types.Money) StockMovement {
	now := time.Now().UTC()
	return StockMovement{
		ID:             id.New(),
		ProductID:      productID,
		InvoiceID:      invoiceID,
		InvoiceDate:    invoiceDate,
		QuantityChange: change,
		UnitCost:       unitCost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Date returns the calendar day of the causing invoice.
func (m *StockMovement) Date() time.Time {
	return DateOf(m.InvoiceDate)
}

// Before reports whether m precedes other in canonical order.
func (m *StockMovement) Before(other *StockMovement) bool {
	if m.InvoiceID != other.InvoiceID {
		return m.InvoiceID < other.InvoiceID
	}
	return bytes.Compare(m.ID[:], other.ID[:]) < 0
}

// DailySnapshot is a materialized point-in-time (quantity, average cost)
// pair for a product on a calendar date. At most one row exists per
// (product, date); the date column is stored at midnight UTC.
type DailySnapshot struct {
	ProductID    id.ID          `db:"product_id" json:"productId"`
	Date         time.Time      `db:"snapshot_date" json:"date"`
	AvailableQty types.Quantity `db:"available_qty" json:"availableQty"`
	AvgCost      types.Money    `db:"avg_cost" json:"avgCost"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// Baseline is the chain state a recomputation starts from: the position and
// average cost after the last movement preceding the recompute window.
type Baseline struct {
	Quantity types.Quantity
	AvgCost  types.Money
}

// ZeroBaseline is the state before any movement exists: empty position,
// zero cost basis.
func ZeroBaseline() Baseline {
	return Baseline{Quantity: types.Zero(), AvgCost: types.Zero()}
}

// BaselineAfter extracts the baseline from a movement, treating a missing
// average cost as zero.
func BaselineAfter(m *StockMovement) Baseline {
	b := Baseline{Quantity: m.QuantityAfter, AvgCost: types.Zero()}
	if m.AvgCostAfter != nil {
		b.AvgCost = *m.AvgCostAfter
	}
	return b
}

// DateOf truncates t to its calendar day (midnight UTC).
func DateOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
