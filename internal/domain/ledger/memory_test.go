package ledger

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// In-memory fakes for the repository interfaces. They implement the same
// ordering and nil-on-absent contracts as the postgres repos.

type passTxManager struct{}

func (passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memLocker struct {
	locked []id.ID
}

func (l *memLocker) LockProduct(_ context.Context, productID id.ID) error {
	l.locked = append(l.locked, productID)
	return nil
}

type memMovementRepo struct {
	rows []StockMovement
}

func canonicalLess(a, b *StockMovement) bool {
	return a.Before(b)
}

func (r *memMovementRepo) sorted(productID id.ID, keep func(*StockMovement) bool) []StockMovement {
	var out []StockMovement
	for i := range r.rows {
		m := &r.rows[i]
		if m.ProductID != productID {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return canonicalLess(&out[i], &out[j]) })
	return out
}

func (r *memMovementRepo) Create(_ context.Context, m *StockMovement) error {
	r.rows = append(r.rows, *m)
	return nil
}

func (r *memMovementRepo) GetByInvoice(_ context.Context, productID id.ID, invoiceID int64) (*StockMovement, error) {
	for i := range r.rows {
		if r.rows[i].ProductID == productID && r.rows[i].InvoiceID == invoiceID {
			m := r.rows[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memMovementRepo) UpdateLine(_ context.Context, movementID id.ID, change types.Quantity, unitCost *types.Money) error {
	for i := range r.rows {
		if r.rows[i].ID == movementID {
			r.rows[i].QuantityChange = change
			r.rows[i].UnitCost = unitCost
			r.rows[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (r *memMovementRepo) Delete(_ context.Context, movementID id.ID) error {
	for i := range r.rows {
		if r.rows[i].ID == movementID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memMovementRepo) LastBefore(_ context.Context, productID id.ID, invoiceID int64) (*StockMovement, error) {
	prefix := r.sorted(productID, func(m *StockMovement) bool { return m.InvoiceID < invoiceID })
	if len(prefix) == 0 {
		return nil, nil
	}
	m := prefix[len(prefix)-1]
	return &m, nil
}

func (r *memMovementRepo) ListFrom(_ context.Context, productID id.ID, invoiceID int64) ([]StockMovement, error) {
	return r.sorted(productID, func(m *StockMovement) bool { return m.InvoiceID >= invoiceID }), nil
}

func (r *memMovementRepo) ListFromDate(_ context.Context, productID id.ID, from time.Time) ([]StockMovement, error) {
	day := DateOf(from)
	return r.sorted(productID, func(m *StockMovement) bool { return !m.Date().Before(day) }), nil
}

func (r *memMovementRepo) SaveChain(_ context.Context, movements []StockMovement) error {
	for _, m := range movements {
		for i := range r.rows {
			if r.rows[i].ID == m.ID {
				r.rows[i].QuantityBefore = m.QuantityBefore
				r.rows[i].QuantityAfter = m.QuantityAfter
				r.rows[i].AvgCostAfter = m.AvgCostAfter
				r.rows[i].UpdatedAt = m.UpdatedAt
			}
		}
	}
	return nil
}

func (r *memMovementRepo) ListByProduct(_ context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error) {
	all := r.sorted(productID, func(m *StockMovement) bool {
		if filter.FromDate != nil && m.Date().Before(DateOf(*filter.FromDate)) {
			return false
		}
		if filter.ToDate != nil && m.Date().After(DateOf(*filter.ToDate)) {
			return false
		}
		return true
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil, nil
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r *memMovementRepo) ListProductIDs(_ context.Context) ([]id.ID, error) {
	seen := map[id.ID]struct{}{}
	var out []id.ID
	for i := range r.rows {
		if _, ok := seen[r.rows[i].ProductID]; !ok {
			seen[r.rows[i].ProductID] = struct{}{}
			out = append(out, r.rows[i].ProductID)
		}
	}
	return out, nil
}

type snapKey struct {
	productID id.ID
	day       int64
}

type memSnapshotRepo struct {
	rows map[snapKey]DailySnapshot
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{rows: map[snapKey]DailySnapshot{}}
}

func keyOf(productID id.ID, date time.Time) snapKey {
	return snapKey{productID: productID, day: DateOf(date).Unix()}
}

func (r *memSnapshotRepo) LatestOnOrBefore(_ context.Context, productID id.ID, date time.Time) (*DailySnapshot, error) {
	limit := DateOf(date)
	var best *DailySnapshot
	for k, s := range r.rows {
		if k.productID != productID || s.Date.After(limit) {
			continue
		}
		if best == nil || s.Date.After(best.Date) {
			snap := s
			best = &snap
		}
	}
	return best, nil
}

func (r *memSnapshotRepo) Exists(_ context.Context, productID id.ID, date time.Time) (bool, error) {
	_, ok := r.rows[keyOf(productID, date)]
	return ok, nil
}

func (r *memSnapshotRepo) Insert(_ context.Context, snap DailySnapshot) error {
	r.rows[keyOf(snap.ProductID, snap.Date)] = snap
	return nil
}

func (r *memSnapshotRepo) Upsert(_ context.Context, snaps []DailySnapshot) error {
	for _, s := range snaps {
		r.rows[keyOf(s.ProductID, s.Date)] = s
	}
	return nil
}

func (r *memSnapshotRepo) DeleteFrom(_ context.Context, productID id.ID, from time.Time) error {
	day := DateOf(from)
	for k, s := range r.rows {
		if k.productID == productID && !s.Date.Before(day) {
			delete(r.rows, k)
		}
	}
	return nil
}

func (r *memSnapshotRepo) DeleteRange(_ context.Context, productID id.ID, from, to time.Time) error {
	lo, hi := DateOf(from), DateOf(to)
	for k, s := range r.rows {
		if k.productID == productID && !s.Date.Before(lo) && !s.Date.After(hi) {
			delete(r.rows, k)
		}
	}
	return nil
}

func (r *memSnapshotRepo) ListRange(_ context.Context, productID id.ID, from, to time.Time) ([]DailySnapshot, error) {
	lo, hi := DateOf(from), DateOf(to)
	var out []DailySnapshot
	for k, s := range r.rows {
		if k.productID == productID && !s.Date.Before(lo) && !s.Date.After(hi) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memSnapshotRepo) GapStarts(_ context.Context, productID *id.ID, today time.Time) (map[id.ID]time.Time, error) {
	today = DateOf(today)
	dates := map[id.ID][]time.Time{}
	for k, s := range r.rows {
		if productID != nil && k.productID != *productID {
			continue
		}
		dates[k.productID] = append(dates[k.productID], s.Date)
	}

	gaps := map[id.ID]time.Time{}
	for pid, ds := range dates {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
		for i, d := range ds {
			isGapStart := false
			if i+1 < len(ds) {
				if ds[i+1].After(d.AddDate(0, 0, 1)) {
					isGapStart = true
				}
			} else if d.Before(today) {
				isGapStart = true
			}
			if isGapStart {
				if cur, ok := gaps[pid]; !ok || d.Before(cur) {
					gaps[pid] = d
				}
			}
		}
	}
	return gaps, nil
}

func (r *memSnapshotRepo) ListProductIDs(_ context.Context) ([]id.ID, error) {
	seen := map[id.ID]struct{}{}
	var out []id.ID
	for k := range r.rows {
		if _, ok := seen[k.productID]; !ok {
			seen[k.productID] = struct{}{}
			out = append(out, k.productID)
		}
	}
	return out, nil
}
