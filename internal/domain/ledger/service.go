package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
)

// Service provides the read side of the ledger for reporting and stock
// valuation screens. All reads run in read-only transactions.
type Service struct {
	movements MovementRepository
	snapshots SnapshotRepository
	tx        tx.ReadOnlyManager
}

// NewService creates a new read service.
func NewService(movements MovementRepository, snapshots SnapshotRepository, txm tx.ReadOnlyManager) *Service {
	return &Service{movements: movements, snapshots: snapshots, tx: txm}
}

// PositionAt returns the product's quantity and average cost as of the given
// date: the snapshot with the greatest date <= date.
func (s *Service) PositionAt(ctx context.Context, productID id.ID, date time.Time) (*DailySnapshot, error) {
	var snap *DailySnapshot
	err := s.tx.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.snapshots.LatestOnOrBefore(ctx, productID, DateOf(date))
		if err != nil {
			return fmt.Errorf("load position: %w", err)
		}
		if snap == nil {
			return apperror.NewNotFound("position", productID).
				WithDetail("date", DateOf(date).Format(time.DateOnly))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// MovementHistory returns the product's movement chain for display, in
// canonical order.
func (s *Service) MovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	var movements []StockMovement
	err := s.tx.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		movements, err = s.movements.ListByProduct(ctx, productID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// SnapshotRange returns daily snapshots in [from, to] for valuation screens.
func (s *Service) SnapshotRange(ctx context.Context, productID id.ID, from, to time.Time) ([]DailySnapshot, error) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, apperror.NewValidation("to date precedes from date")
	}

	var snaps []DailySnapshot
	err := s.tx.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		snaps, err = s.snapshots.ListRange(ctx, productID, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
