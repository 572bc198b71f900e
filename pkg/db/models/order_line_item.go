package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem captures the snapshot of each vendor's item within an order.
// TotalCents is always Qty * UnitPriceCents; payouts are computed from line
// items only, never from the order total.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	VendorID       uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Vendor         *Vendor   `gorm:"foreignKey:VendorID"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64     `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
