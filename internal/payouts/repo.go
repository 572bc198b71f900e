package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/internal/repo"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Repository is the order-ledger surface the payout engine reads and writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPayableOrders(ctx context.Context) ([]models.Order, error)
	MarkOrdersPaid(ctx context.Context, orderIDs []uuid.UUID, batchRef string) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// FindPayableOrders returns completed orders not yet paid out, with line items
// and vendors eagerly resolved so later stages need no extra round trips.
func (r *repository) FindPayableOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.DB(ctx).
		Preload("Items.Vendor").
		Where("status = ? AND payout_status = ?", enums.OrderStatusCompleted, enums.PayoutStatusPending).
		Order("created_at ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkOrdersPaid transitions the given orders to paid, stamping the batch
// reference. The payout_status guard re-verifies each order is still pending,
// so a row claimed by a concurrent run is left untouched; callers compare the
// returned count against the covered set and roll back on a mismatch.
func (r *repository) MarkOrdersPaid(ctx context.Context, orderIDs []uuid.UUID, batchRef string) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	result := r.DB(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND payout_status = ?", orderIDs, enums.PayoutStatusPending).
		Updates(map[string]any{
			"payout_status":    enums.PayoutStatusPaid,
			"payout_batch_ref": batchRef,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
