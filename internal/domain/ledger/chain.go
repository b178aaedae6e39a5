package ledger

import (
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// RecomputeChain applies the running-position recurrence to movements in
// canonical order, starting from base, and returns the chain state after the
// last movement. Each movement's QuantityBefore, QuantityAfter and
// AvgCostAfter are overwritten in place:
//
//	quantity_after = quantity_before + quantity_change
//	avg_cost_after = (qty_before*avg_before + change*unit_cost) / qty_after
//	                 when change > 0 and unit_cost is known,
//	                 otherwise avg_cost_after = avg_before
//
// When a movement depletes the position to exactly zero the previous average
// cost is carried forward instead of dividing by zero: a depleted position
// still needs a defined cost basis for the next incoming movement.
func RecomputeChain(base Baseline, movements []StockMovement) Baseline {
	for i := range movements {
		m := &movements[i]
		m.QuantityBefore = base.Quantity
		m.QuantityAfter = base.Quantity.Add(m.QuantityChange)

		avg := base.AvgCost
		if m.QuantityChange.IsPositive() && m.UnitCost != nil && !m.QuantityAfter.IsZero() {
			blended := m.QuantityBefore.Mul(base.AvgCost).Add(m.QuantityChange.Mul(*m.UnitCost))
			avg = blended.Div(m.QuantityAfter)
		}

		avgCopy := avg
		m.AvgCostAfter = &avgCopy
		m.UpdatedAt = time.Now().UTC()

		base = Baseline{Quantity: m.QuantityAfter, AvgCost: avg}
	}
	return base
}

// closingWins reports whether a is the later movement of its day than b:
// latest invoice_date, then latest invoice_id, then latest row id.
func closingWins(a, b *StockMovement) bool {
	if !a.InvoiceDate.Equal(b.InvoiceDate) {
		return a.InvoiceDate.After(b.InvoiceDate)
	}
	if a.InvoiceID != b.InvoiceID {
		return a.InvoiceID > b.InvoiceID
	}
	return b.Before(a)
}

// DailyClosings derives one snapshot per calendar day from movements: the
// day's closing position is taken from the latest movement on that day.
// The result is sorted by date ascending.
func DailyClosings(movements []StockMovement) []DailySnapshot {
	latest := make(map[time.Time]*StockMovement)
	for i := range movements {
		m := &movements[i]
		day := m.Date()
		if cur, ok := latest[day]; !ok || closingWins(m, cur) {
			latest[day] = m
		}
	}

	snapshots := make([]DailySnapshot, 0, len(latest))
	now := time.Now().UTC()
	for day, m := range latest {
		avg := types.Zero()
		if m.AvgCostAfter != nil {
			avg = *m.AvgCostAfter
		}
		snapshots = append(snapshots, DailySnapshot{
			ProductID:    m.ProductID,
			Date:         day,
			AvailableQty: m.QuantityAfter,
			AvgCost:      avg,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Date.Before(snapshots[j].Date)
	})
	return snapshots
}

// ForwardFill generates one snapshot for every calendar day in [from, to].
// Days present in existing keep their stored value; missing days carry the
// most recent earlier value within the span (last observation carried
// forward), or (0, 0) when no earlier value exists at all.
//
// existing must be sorted by date ascending and lie within the span.
// The returned filled count is the number of generated (non-existing) days.
func ForwardFill(productID id.ID, existing []DailySnapshot, from, to time.Time) ([]DailySnapshot, int) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, 0
	}

	rows := make([]DailySnapshot, 0, int(to.Sub(from).Hours()/24)+1)
	carryQty, carryCost := types.Zero(), types.Zero()
	now := time.Now().UTC()
	filled := 0
	i := 0

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if i < len(existing) && existing[i].Date.Equal(day) {
			rows = append(rows, existing[i])
			carryQty, carryCost = existing[i].AvailableQty, existing[i].AvgCost
			i++
			continue
		}
		rows = append(rows, DailySnapshot{
			ProductID:    productID,
			Date:         day,
			AvailableQty: carryQty,
			AvgCost:      carryCost,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		filled++
	}
	return rows, filled
}
