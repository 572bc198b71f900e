package disburse

import "fmt"

// OutcomeStatus is the provider's verdict for a single payout item.
type OutcomeStatus string

const (
	OutcomeAccepted OutcomeStatus = "accepted"
	OutcomeRejected OutcomeStatus = "rejected"
)

// IsValid reports whether the status is one the provider contract defines.
func (s OutcomeStatus) IsValid() bool {
	return s == OutcomeAccepted || s == OutcomeRejected
}

// ItemRequest is one vendor payout instruction within a batch.
type ItemRequest struct {
	// Reference identifies the vendor line locally; the provider echoes it
	// back so outcomes can be correlated without positional matching.
	Reference   string
	Receiver    string
	AmountCents int64
	Currency    string
}

// BatchRequest is the full per-run disbursement submission.
type BatchRequest struct {
	IdempotencyKey string
	Note           string
	Items          []ItemRequest
}

type wireBatch struct {
	BatchHeader wireBatchHeader `json:"batch_header"`
	Items       []wireItem      `json:"items"`
}

type wireBatchHeader struct {
	BatchKey string `json:"batch_key"`
	Note     string `json:"note,omitempty"`
}

type wireItem struct {
	Reference string     `json:"reference"`
	Receiver  string     `json:"receiver"`
	Amount    wireAmount `json:"amount"`
}

type wireAmount struct {
	ValueCents int64  `json:"value_cents"`
	Currency   string `json:"currency"`
}

func (b BatchRequest) toWire() wireBatch {
	wire := wireBatch{
		BatchHeader: wireBatchHeader{BatchKey: b.IdempotencyKey, Note: b.Note},
		Items:       make([]wireItem, 0, len(b.Items)),
	}
	for _, item := range b.Items {
		wire.Items = append(wire.Items, wireItem{
			Reference: item.Reference,
			Receiver:  item.Receiver,
			Amount:    wireAmount{ValueCents: item.AmountCents, Currency: item.Currency},
		})
	}
	return wire
}

// ItemOutcome is the tagged per-item result returned by the provider.
type ItemOutcome struct {
	Reference string        `json:"reference"`
	ItemID    string        `json:"item_id"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
}

// Accepted reports whether the provider accepted this item.
func (o ItemOutcome) Accepted() bool {
	return o.Status == OutcomeAccepted
}

// BatchResult is the provider's response to a batch submission or status query.
type BatchResult struct {
	BatchID string        `json:"batch_id"`
	Items   []ItemOutcome `json:"items"`
}

// OutcomeFor returns the outcome whose reference matches, or an error when the
// provider response does not cover the reference at all.
func (r *BatchResult) OutcomeFor(reference string) (ItemOutcome, error) {
	for _, item := range r.Items {
		if item.Reference == reference {
			return item, nil
		}
	}
	return ItemOutcome{}, fmt.Errorf("no outcome for reference %q", reference)
}
