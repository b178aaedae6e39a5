// Package ledger_repo provides PostgreSQL implementations for the ledger
// repositories.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "ledger_stock_movements"

var movementColumns = []string{
	"id", "product_id", "invoice_id", "invoice_date",
	"quantity_before", "quantity_change", "quantity_after",
	"unit_cost", "avg_cost_after",
	"created_at", "updated_at",
}

// Compile-time check that MovementRepo implements ledger.MovementRepository.
var _ ledger.MovementRepository = (*MovementRepo)(nil)

// MovementRepo implements ledger.MovementRepository.
// All list queries return canonical order (invoice_id ASC, id ASC); the
// composite index on (product_id, invoice_id, id) serves both the ordering
// and the chain-tail range scans.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	batch   *postgres.BatchExecutor
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		batch:   postgres.NewBatchExecutor(txm),
	}
}

// Create inserts a new movement row.
func (r *MovementRepo) Create(ctx context.Context, m *ledger.StockMovement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.ProductID, m.InvoiceID, m.InvoiceDate,
			m.QuantityBefore, m.QuantityChange, m.QuantityAfter,
			m.UnitCost, m.AvgCostAfter,
			m.CreatedAt, m.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetByInvoice returns the movement for (product, invoice), or nil.
func (r *MovementRepo) GetByInvoice(ctx context.Context, productID id.ID, invoiceID int64) (*ledger.StockMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"product_id": productID, "invoice_id": invoiceID}).
		OrderBy("id").
		Limit(1)

	return r.getOne(ctx, q)
}

// UpdateLine overwrites quantity_change and unit_cost of a movement.
func (r *MovementRepo) UpdateLine(ctx context.Context, movementID id.ID, change types.Quantity, unitCost *types.Money) error {
	q := r.builder.Update(movementsTable).
		Set("quantity_change", change).
		Set("unit_cost", unitCost).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	return nil
}

// Delete removes a movement row.
func (r *MovementRepo) Delete(ctx context.Context, movementID id.ID) error {
	q := r.builder.Delete(movementsTable).Where(squirrel.Eq{"id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	return nil
}

// LastBefore returns the last movement strictly before invoiceID in
// canonical order, or nil.
func (r *MovementRepo) LastBefore(ctx context.Context, productID id.ID, invoiceID int64) (*ledger.StockMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Lt{"invoice_id": invoiceID}).
		OrderBy("invoice_id DESC", "id DESC").
		Limit(1)

	return r.getOne(ctx, q)
}

// ListFrom returns all movements with invoice_id >= invoiceID in canonical order.
func (r *MovementRepo) ListFrom(ctx context.Context, productID id.ID, invoiceID int64) ([]ledger.StockMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"invoice_id": invoiceID}).
		OrderBy("invoice_id", "id")

	return r.list(ctx, q)
}

// ListFromDate returns all movements dated on or after the given day.
func (r *MovementRepo) ListFromDate(ctx context.Context, productID id.ID, from time.Time) ([]ledger.StockMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"invoice_date": ledger.DateOf(from)}).
		OrderBy("invoice_id", "id")

	return r.list(ctx, q)
}

// SaveChain persists recomputed running fields in a single round-trip.
func (r *MovementRepo) SaveChain(ctx context.Context, movements []ledger.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	queries := make([]postgres.BatchQuery, 0, len(movements))
	for i := range movements {
		m := &movements[i]
		q := r.builder.Update(movementsTable).
			Set("quantity_before", m.QuantityBefore).
			Set("quantity_after", m.QuantityAfter).
			Set("avg_cost_after", m.AvgCostAfter).
			Set("updated_at", m.UpdatedAt).
			Where(squirrel.Eq{"id": m.ID})

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build chain update: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
	}

	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("save chain: %w", err)
	}
	return nil
}

// ListByProduct returns movement history for reporting.
func (r *MovementRepo) ListByProduct(ctx context.Context, productID id.ID, filter ledger.MovementFilter) ([]ledger.StockMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("invoice_id", "id")

	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"invoice_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"invoice_date": *filter.ToDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.list(ctx, q)
}

// ListProductIDs returns the distinct products present in the chain.
func (r *MovementRepo) ListProductIDs(ctx context.Context) ([]id.ID, error) {
	q := r.builder.Select("DISTINCT product_id").From(movementsTable)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return ids, nil
}

func (r *MovementRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(movementColumns...).From(movementsTable)
}

func (r *MovementRepo) getOne(ctx context.Context, q squirrel.SelectBuilder) (*ledger.StockMovement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.StockMovement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

func (r *MovementRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.StockMovement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}
