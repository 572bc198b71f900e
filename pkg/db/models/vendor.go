package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vendor represents a seller account that receives payouts.
type Vendor struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyName    string           `gorm:"column:company_name;not null"`
	PayoutEmail    string           `gorm:"column:payout_email;not null"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,5)"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
