// Package dto defines request and response shapes for the v1 API.
package dto

import (
	"time"

	"stockledger/internal/domain/ledger"
)

// RegisterMovementRequest records a new invoice line in the ledger.
type RegisterMovementRequest struct {
	ProductID      string  `json:"product_id" binding:"required,uuid"`
	InvoiceID      int64   `json:"invoice_id" binding:"required,gt=0"`
	InvoiceDate    string  `json:"invoice_date" binding:"required"`
	QuantityChange string  `json:"quantity_change" binding:"required"`
	UnitCost       *string `json:"unit_cost,omitempty"`
}

// RecalculateRequest replays a product's chain after an invoice line
// was edited or deleted upstream.
type RecalculateRequest struct {
	ProductID         string  `json:"product_id" binding:"required,uuid"`
	InvoiceID         int64   `json:"invoice_id" binding:"required,gt=0"`
	Action            string  `json:"action" binding:"required,oneof=EDIT DELETE"`
	NewQuantityChange *string `json:"new_quantity_change,omitempty"`
	NewUnitCost       *string `json:"new_unit_cost,omitempty"`
}

// MovementResponse is a single ledger row.
type MovementResponse struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	InvoiceID      int64     `json:"invoice_id"`
	InvoiceDate    time.Time `json:"invoice_date"`
	QuantityBefore string    `json:"quantity_before"`
	QuantityChange string    `json:"quantity_change"`
	QuantityAfter  string    `json:"quantity_after"`
	UnitCost       *string   `json:"unit_cost,omitempty"`
	AvgCostAfter   *string   `json:"avg_cost_after,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SnapshotResponse is a single end-of-day position row.
type SnapshotResponse struct {
	ProductID    string `json:"product_id"`
	SnapshotDate string `json:"snapshot_date"`
	AvailableQty string `json:"available_qty"`
	AvgCost      string `json:"avg_cost"`
}

// CarryForwardResponse reports the outcome of a daily snapshot run.
type CarryForwardResponse struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// GapRepairResponse reports the outcome of a gap repair run.
type GapRepairResponse struct {
	FilledRows int `json:"filled_rows"`
}

// ToMovementResponse converts a domain movement to its API shape.
func ToMovementResponse(m *ledger.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:             m.ID.String(),
		ProductID:      m.ProductID.String(),
		InvoiceID:      m.InvoiceID,
		InvoiceDate:    m.InvoiceDate,
		QuantityBefore: m.QuantityBefore.String(),
		QuantityChange: m.QuantityChange.String(),
		QuantityAfter:  m.QuantityAfter.String(),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.UnitCost != nil {
		s := m.UnitCost.String()
		resp.UnitCost = &s
	}
	if m.AvgCostAfter != nil {
		s := m.AvgCostAfter.String()
		resp.AvgCostAfter = &s
	}
	return resp
}

// ToMovementResponses converts a slice of domain movements.
func ToMovementResponses(movements []ledger.StockMovement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		out = append(out, ToMovementResponse(&movements[i]))
	}
	return out
}

// ToSnapshotResponse converts a domain snapshot to its API shape.
func ToSnapshotResponse(s *ledger.DailySnapshot) SnapshotResponse {
	return SnapshotResponse{
		ProductID:    s.ProductID.String(),
		SnapshotDate: s.Date.Format("2006-01-02"),
		AvailableQty: s.AvailableQty.String(),
		AvgCost:      s.AvgCost.String(),
	}
}

// ToSnapshotResponses converts a slice of domain snapshots.
func ToSnapshotResponses(snapshots []ledger.DailySnapshot) []SnapshotResponse {
	out := make([]SnapshotResponse, 0, len(snapshots))
	for i := range snapshots {
		out = append(out, ToSnapshotResponse(&snapshots[i]))
	}
	return out
}
