package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/internal/repo"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Repository manages persistence for ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	ListByBatchRef(ctx context.Context, batchRef string) ([]models.LedgerEvent, error)
	ExistsByOrderAndType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.DB(ctx).Create(event).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListByBatchRef(ctx context.Context, batchRef string) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.DB(ctx).
		Where("batch_ref = ?", batchRef).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ExistsByOrderAndType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	var count int64
	if err := r.DB(ctx).
		Model(&models.LedgerEvent{}).
		Where("order_id = ? AND type = ?", orderID, eventType).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
