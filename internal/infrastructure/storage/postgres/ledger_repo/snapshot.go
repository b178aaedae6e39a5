package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	snapshotsTable     = "ledger_daily_snapshots"
	snapshotsTempTable = "tmp_ledger_daily_snapshots"

	// Above this row count Upsert streams through a transaction-scoped temp
	// table with COPY instead of a multi-VALUES statement. Long repair spans
	// (years of calendar days) stay fast this way.
	copyThreshold = 64
)

var snapshotColumns = []string{
	"product_id", "snapshot_date", "available_qty", "avg_cost",
	"created_at", "updated_at",
}

const upsertConflictClause = `ON CONFLICT (product_id, snapshot_date) DO UPDATE SET
	available_qty = EXCLUDED.available_qty,
	avg_cost = EXCLUDED.avg_cost,
	updated_at = EXCLUDED.updated_at`

// Compile-time check that SnapshotRepo implements ledger.SnapshotRepository.
var _ ledger.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo implements ledger.SnapshotRepository.
// The (product_id, snapshot_date) primary key is the uniqueness guarantee:
// at most one snapshot per product per calendar day.
type SnapshotRepo struct {
	txm      *postgres.TxManager
	builder  squirrel.StatementBuilderType
	inserter *postgres.BatchInserter
}

// NewSnapshotRepo creates a new snapshot repository.
func NewSnapshotRepo(txm *postgres.TxManager) *SnapshotRepo {
	return &SnapshotRepo{
		txm:      txm,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		inserter: postgres.NewBatchInserter(txm),
	}
}

// LatestOnOrBefore returns the snapshot with the greatest date <= date, or nil.
func (r *SnapshotRepo) LatestOnOrBefore(ctx context.Context, productID id.ID, date time.Time) (*ledger.DailySnapshot, error) {
	q := r.builder.Select(snapshotColumns...).From(snapshotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.LtOrEq{"snapshot_date": date}).
		OrderBy("snapshot_date DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var snap ledger.DailySnapshot
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &snap, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snap, nil
}

// Exists reports whether a snapshot row exists for (product, date).
func (r *SnapshotRepo) Exists(ctx context.Context, productID id.ID, date time.Time) (bool, error) {
	sql := `SELECT EXISTS (SELECT 1 FROM ledger_daily_snapshots WHERE product_id = $1 AND snapshot_date = $2)`

	var exists bool
	row := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, productID, date)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return exists, nil
}

// Insert creates a snapshot row; the primary key rejects duplicates.
func (r *SnapshotRepo) Insert(ctx context.Context, snap ledger.DailySnapshot) error {
	q := r.builder.Insert(snapshotsTable).
		Columns(snapshotColumns...).
		Values(snap.ProductID, snap.Date, snap.AvailableQty, snap.AvgCost, snap.CreatedAt, snap.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Upsert inserts or updates snapshot rows on the (product, date) key.
// Small batches go out as one multi-VALUES statement; large ones are
// COPY-streamed into a temp table and merged from there.
func (r *SnapshotRepo) Upsert(ctx context.Context, snaps []ledger.DailySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	if len(snaps) > copyThreshold && r.txm.GetTx(ctx) != nil {
		return r.upsertViaCopy(ctx, snaps)
	}

	q := r.builder.Insert(snapshotsTable).
		Columns(snapshotColumns...).
		Suffix(upsertConflictClause)

	for _, s := range snaps {
		q = q.Values(s.ProductID, s.Date, s.AvailableQty, s.AvgCost, s.CreatedAt, s.UpdatedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert snapshots: %w", err)
	}
	return nil
}

// upsertViaCopy stages rows in a transaction-scoped temp table (dropped on
// commit, truncated between uses within one transaction) and merges them
// into the live table in one statement.
func (r *SnapshotRepo) upsertViaCopy(ctx context.Context, snaps []ledger.DailySnapshot) error {
	querier := r.txm.GetQuerier(ctx)

	setup := fmt.Sprintf(`CREATE TEMP TABLE IF NOT EXISTS %s
		(LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP`, snapshotsTempTable, snapshotsTable)
	if _, err := querier.Exec(ctx, setup); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	if _, err := querier.Exec(ctx, "TRUNCATE "+snapshotsTempTable); err != nil {
		return fmt.Errorf("truncate temp table: %w", err)
	}

	rows := make([][]any, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []any{s.ProductID, s.Date, s.AvailableQty, s.AvgCost, s.CreatedAt, s.UpdatedAt})
	}
	if _, err := r.inserter.CopyFromSlice(ctx, snapshotsTempTable, snapshotColumns, rows); err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}

	merge := fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s %s`,
		snapshotsTable, snapshotsTempTable, upsertConflictClause)
	if _, err := querier.Exec(ctx, merge); err != nil {
		return fmt.Errorf("merge snapshots: %w", err)
	}
	return nil
}

// DeleteFrom removes all snapshots of the product with date >= from.
func (r *SnapshotRepo) DeleteFrom(ctx context.Context, productID id.ID, from time.Time) error {
	q := r.builder.Delete(snapshotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"snapshot_date": from})

	return r.exec(ctx, q)
}

// DeleteRange removes snapshots of the product with from <= date <= to.
func (r *SnapshotRepo) DeleteRange(ctx context.Context, productID id.ID, from, to time.Time) error {
	q := r.builder.Delete(snapshotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"snapshot_date": from}).
		Where(squirrel.LtOrEq{"snapshot_date": to})

	return r.exec(ctx, q)
}

// ListRange returns snapshots with from <= date <= to, date ascending.
func (r *SnapshotRepo) ListRange(ctx context.Context, productID id.ID, from, to time.Time) ([]ledger.DailySnapshot, error) {
	q := r.builder.Select(snapshotColumns...).From(snapshotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"snapshot_date": from}).
		Where(squirrel.LtOrEq{"snapshot_date": to}).
		OrderBy("snapshot_date")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var snaps []ledger.DailySnapshot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &snaps, sql, args...); err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	return snaps, nil
}

// GapStarts detects per-product calendar gaps with one window-function scan:
// a gap is a pair of consecutive dates more than one day apart, or a latest
// date before today. Returns the earliest gap-preceding date per product.
func (r *SnapshotRepo) GapStarts(ctx context.Context, productID *id.ID, today time.Time) (map[id.ID]time.Time, error) {
	var (
		sql  string
		args []any
	)
	if productID != nil {
		sql = `
			SELECT product_id, MIN(gap_start) AS span_start
			FROM (
				SELECT product_id,
				       snapshot_date AS gap_start,
				       LEAD(snapshot_date) OVER (PARTITION BY product_id ORDER BY snapshot_date) AS next_date
				FROM ledger_daily_snapshots
				WHERE product_id = $1
			) d
			WHERE (next_date IS NOT NULL AND next_date > gap_start + INTERVAL '1 day')
			   OR (next_date IS NULL AND gap_start < $2)
			GROUP BY product_id`
		args = []any{*productID, today}
	} else {
		sql = `
			SELECT product_id, MIN(gap_start) AS span_start
			FROM (
				SELECT product_id,
				       snapshot_date AS gap_start,
				       LEAD(snapshot_date) OVER (PARTITION BY product_id ORDER BY snapshot_date) AS next_date
				FROM ledger_daily_snapshots
			) d
			WHERE (next_date IS NOT NULL AND next_date > gap_start + INTERVAL '1 day')
			   OR (next_date IS NULL AND gap_start < $1)
			GROUP BY product_id`
		args = []any{today}
	}

	type gapRow struct {
		ProductID id.ID     `db:"product_id"`
		SpanStart time.Time `db:"span_start"`
	}

	var rows []gapRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select gaps: %w", err)
	}

	gaps := make(map[id.ID]time.Time, len(rows))
	for _, row := range rows {
		gaps[row.ProductID] = ledger.DateOf(row.SpanStart)
	}
	return gaps, nil
}

// ListProductIDs returns the distinct products present in the table.
func (r *SnapshotRepo) ListProductIDs(ctx context.Context) ([]id.ID, error) {
	q := r.builder.Select("DISTINCT product_id").From(snapshotsTable)

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

func (r *SnapshotRepo) exec(ctx context.Context, q squirrel.DeleteBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}
