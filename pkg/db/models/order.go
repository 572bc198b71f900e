package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Order represents a completed purchase eligible for vendor payout.
// PayoutBatchRef is set if and only if PayoutStatus is paid.
type Order struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerRef       uuid.UUID          `gorm:"column:buyer_ref;type:uuid;not null"`
	Status         enums.OrderStatus  `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalCents     int64              `gorm:"column:total_cents;not null"`
	Currency       enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	PayoutStatus   enums.PayoutStatus `gorm:"column:payout_status;type:payout_status;not null;default:'pending'"`
	PayoutBatchRef *string            `gorm:"column:payout_batch_ref"`
	Items          []OrderLineItem    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
