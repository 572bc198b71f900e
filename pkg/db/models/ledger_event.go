package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// LedgerEvent is an append-only audit record of payout activity per order.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	VendorID    uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	Type        enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	BatchRef    *string               `gorm:"column:batch_ref"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
