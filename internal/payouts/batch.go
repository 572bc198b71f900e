package payouts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/disburse"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
)

// CoveredOrder ties an order to the net amount it contributed to a vendor line.
type CoveredOrder struct {
	OrderID  uuid.UUID
	NetCents int64
}

// VendorLine is one vendor's aggregated disbursement instruction for a run.
type VendorLine struct {
	VendorID uuid.UUID
	Receiver string
	NetCents int64
	Covered  []CoveredOrder
}

// OrderIDs returns the covered order IDs in insertion order.
func (l VendorLine) OrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.Covered))
	for _, covered := range l.Covered {
		ids = append(ids, covered.OrderID)
	}
	return ids
}

// Batch is the per-run payout aggregate. It is computed fresh each cycle and
// never persisted; only its effects on orders and the ledger are durable.
// Lines holds vendors owed money; ZeroLines holds vendors whose aggregate net
// came to zero, whose covered orders are finalized without any money movement
// so degenerate pricing does not stall them forever.
type Batch struct {
	IdempotencyKey string
	Lines          []VendorLine
	ZeroLines      []VendorLine
}

// OrderIssue reports an order excluded from a batch. VendorID may be Nil when
// the offending line item had no resolvable vendor.
type OrderIssue struct {
	OrderID  uuid.UUID
	VendorID uuid.UUID
	Err      error
}

// BuildBatch aggregates payable orders into per-vendor disbursement lines.
// Vendor overrides take precedence over the default commission rate. Orders
// that violate a computation invariant are skipped and reported without
// aborting the batch. Lines are emitted in ascending vendor-ID order so the
// output is deterministic and diffable.
func BuildBatch(orders []models.Order, defaultRate decimal.Decimal) (*Batch, []OrderIssue) {
	type accumulator struct {
		receiver string
		net      int64
		covered  []CoveredOrder
	}

	byVendor := map[uuid.UUID]*accumulator{}
	issues := []OrderIssue{}

	for _, order := range orders {
		vendorID, net, err := orderContribution(order, defaultRate)
		if err != nil {
			issues = append(issues, OrderIssue{OrderID: order.ID, VendorID: vendorID, Err: err})
			continue
		}
		acc, ok := byVendor[vendorID]
		if !ok {
			acc = &accumulator{receiver: order.Items[0].Vendor.PayoutEmail}
			byVendor[vendorID] = acc
		}
		acc.net += net
		acc.covered = append(acc.covered, CoveredOrder{OrderID: order.ID, NetCents: net})
	}

	vendorIDs := make([]uuid.UUID, 0, len(byVendor))
	for vendorID := range byVendor {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool {
		return strings.Compare(vendorIDs[i].String(), vendorIDs[j].String()) < 0
	})

	batch := &Batch{}
	coveredIDs := []string{}
	for _, vendorID := range vendorIDs {
		acc := byVendor[vendorID]
		line := VendorLine{
			VendorID: vendorID,
			Receiver: acc.receiver,
			NetCents: acc.net,
			Covered:  acc.covered,
		}
		if acc.net <= 0 {
			batch.ZeroLines = append(batch.ZeroLines, line)
			continue
		}
		batch.Lines = append(batch.Lines, line)
		for _, covered := range acc.covered {
			coveredIDs = append(coveredIDs, covered.OrderID.String())
		}
	}

	batch.IdempotencyKey = idempotencyKey(coveredIDs)
	return batch, issues
}

// orderContribution computes the order's total vendor net and verifies the
// order belongs to exactly one vendor. Orders with line items spanning
// multiple vendors cannot honor the one-line-per-order coverage rule and are
// skipped for operator attention.
func orderContribution(order models.Order, defaultRate decimal.Decimal) (uuid.UUID, int64, error) {
	var vendorID uuid.UUID
	var net int64

	if len(order.Items) == 0 {
		return vendorID, 0, pkgerrors.New(pkgerrors.CodeInvariant,
			fmt.Sprintf("order %s is payable but has no line items", order.ID))
	}

	for _, item := range order.Items {
		if item.Vendor == nil || item.VendorID == uuid.Nil {
			return vendorID, 0, pkgerrors.New(pkgerrors.CodeInvariant,
				fmt.Sprintf("order %s line %s has no resolved vendor", order.ID, item.ID))
		}
		if vendorID == uuid.Nil {
			vendorID = item.VendorID
		} else if vendorID != item.VendorID {
			return vendorID, 0, pkgerrors.New(pkgerrors.CodeInvariant,
				fmt.Sprintf("order %s spans vendors %s and %s", order.ID, vendorID, item.VendorID))
		}
		if item.TotalCents != int64(item.Qty)*item.UnitPriceCents {
			return vendorID, 0, pkgerrors.New(pkgerrors.CodeInvariant,
				fmt.Sprintf("order %s line %s total %d != qty %d x unit %d",
					order.ID, item.ID, item.TotalCents, item.Qty, item.UnitPriceCents))
		}

		rate := defaultRate
		if item.Vendor.CommissionRate != nil {
			rate = *item.Vendor.CommissionRate
		}
		split, err := ComputeLineSplit(item.TotalCents, rate)
		if err != nil {
			return vendorID, 0, err
		}
		net += split.NetCents
	}

	return vendorID, net, nil
}

// idempotencyKey derives a stable key from the sorted covered order IDs so a
// resubmission of the same coverage on a later run dedupes at the provider.
func idempotencyKey(orderIDs []string) string {
	sorted := make([]string, len(orderIDs))
	copy(sorted, orderIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// Request converts the payable lines into the provider submission payload.
func (b *Batch) Request(currency, note string) disburse.BatchRequest {
	req := disburse.BatchRequest{
		IdempotencyKey: b.IdempotencyKey,
		Note:           note,
		Items:          make([]disburse.ItemRequest, 0, len(b.Lines)),
	}
	for _, line := range b.Lines {
		req.Items = append(req.Items, disburse.ItemRequest{
			Reference:   line.VendorID.String(),
			Receiver:    line.Receiver,
			AmountCents: line.NetCents,
			Currency:    currency,
		})
	}
	return req
}
