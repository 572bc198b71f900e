package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Service defines operations that record payout ledger events. The ledger is
// append-only: events are never updated or deleted once written.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	EventsForBatch(ctx context.Context, batchRef string) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	VendorID    uuid.UUID             `json:"vendor_id"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int64                 `json:"amount_cents"`
	BatchRef    string                `json:"batch_ref"`
	Metadata    json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, fmt.Errorf("vendor id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}

	event := &models.LedgerEvent{
		ID:          uuid.New(),
		OrderID:     input.OrderID,
		VendorID:    input.VendorID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
		Metadata:    input.Metadata,
	}
	if input.BatchRef != "" {
		ref := input.BatchRef
		event.BatchRef = &ref
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.ExistsByOrderAndType(ctx, orderID, eventType)
}

func (s *service) EventsForBatch(ctx context.Context, batchRef string) ([]models.LedgerEvent, error) {
	if batchRef == "" {
		return nil, fmt.Errorf("batch ref is required")
	}
	return s.repo.ListByBatchRef(ctx, batchRef)
}
