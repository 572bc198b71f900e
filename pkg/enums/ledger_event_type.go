package enums

import "fmt"

// LedgerEventType maps to the ledger_event_type enum in Postgres.
type LedgerEventType string

const (
	LedgerEventTypePayoutSubmitted    LedgerEventType = "payout_submitted"
	LedgerEventTypePayoutSettled      LedgerEventType = "payout_settled"
	LedgerEventTypePayoutLineRejected LedgerEventType = "payout_line_rejected"
	LedgerEventTypePayoutOrderSkipped LedgerEventType = "payout_order_skipped"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypePayoutSubmitted,
	LedgerEventTypePayoutSettled,
	LedgerEventTypePayoutLineRejected,
	LedgerEventTypePayoutOrderSkipped,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
