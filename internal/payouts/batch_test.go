package payouts

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
)

func testVendor(email string) *models.Vendor {
	return &models.Vendor{ID: uuid.New(), CompanyName: "vendor", PayoutEmail: email}
}

func orderFor(vendor *models.Vendor, totals ...int64) models.Order {
	order := models.Order{ID: uuid.New()}
	for _, total := range totals {
		order.Items = append(order.Items, models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			VendorID:       vendor.ID,
			Vendor:         vendor,
			Qty:            1,
			UnitPriceCents: total,
			TotalCents:     total,
		})
	}
	return order
}

func TestBuildBatchAggregatesPerVendor(t *testing.T) {
	vendor := testVendor("a@vendor.test")
	order1 := orderFor(vendor, 10000)
	order2 := orderFor(vendor, 5000)

	batch, issues := BuildBatch([]models.Order{order1, order2}, rate(t, "0.10"))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(batch.Lines) != 1 {
		t.Fatalf("expected one vendor line, got %d", len(batch.Lines))
	}

	line := batch.Lines[0]
	if line.NetCents != 13500 {
		t.Fatalf("expected aggregated net 13500, got %d", line.NetCents)
	}
	if line.Receiver != "a@vendor.test" {
		t.Fatalf("unexpected receiver %q", line.Receiver)
	}
	ids := line.OrderIDs()
	if len(ids) != 2 || ids[0] != order1.ID || ids[1] != order2.ID {
		t.Fatalf("unexpected covered orders %v", ids)
	}
}

func TestBuildBatchEmitsVendorsInAscendingIDOrder(t *testing.T) {
	vendors := []*models.Vendor{testVendor("a@x.test"), testVendor("b@x.test"), testVendor("c@x.test")}
	orders := []models.Order{
		orderFor(vendors[2], 100),
		orderFor(vendors[0], 100),
		orderFor(vendors[1], 100),
	}

	batch, _ := BuildBatch(orders, rate(t, "0"))
	if len(batch.Lines) != 3 {
		t.Fatalf("expected three lines, got %d", len(batch.Lines))
	}
	for i := 1; i < len(batch.Lines); i++ {
		if batch.Lines[i-1].VendorID.String() >= batch.Lines[i].VendorID.String() {
			t.Fatalf("lines not sorted by vendor id: %s before %s",
				batch.Lines[i-1].VendorID, batch.Lines[i].VendorID)
		}
	}
}

func TestBuildBatchUsesVendorRateOverride(t *testing.T) {
	override := rate(t, "0.50")
	vendor := testVendor("v@x.test")
	vendor.CommissionRate = &override
	order := orderFor(vendor, 1000)

	batch, issues := BuildBatch([]models.Order{order}, rate(t, "0.10"))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if batch.Lines[0].NetCents != 500 {
		t.Fatalf("expected override rate applied (net 500), got %d", batch.Lines[0].NetCents)
	}
}

func TestBuildBatchMovesZeroNetVendorsOutOfDisbursement(t *testing.T) {
	funded := testVendor("funded@x.test")
	zero := testVendor("zero@x.test")
	orders := []models.Order{
		orderFor(funded, 10000),
		orderFor(zero, 0),
	}

	batch, issues := BuildBatch(orders, rate(t, "0.10"))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(batch.Lines) != 1 || batch.Lines[0].VendorID != funded.ID {
		t.Fatalf("expected only the funded vendor in payable lines, got %+v", batch.Lines)
	}
	if len(batch.ZeroLines) != 1 || batch.ZeroLines[0].VendorID != zero.ID {
		t.Fatalf("expected the zero-net vendor in zero lines, got %+v", batch.ZeroLines)
	}
	if batch.ZeroLines[0].NetCents != 0 || len(batch.ZeroLines[0].Covered) != 1 {
		t.Fatalf("zero line should still cover its order: %+v", batch.ZeroLines[0])
	}
}

func TestBuildBatchSkipsInvalidOrders(t *testing.T) {
	vendorA := testVendor("a@x.test")
	vendorB := testVendor("b@x.test")

	good := orderFor(vendorA, 1000)

	crossVendor := orderFor(vendorA, 1000)
	crossVendor.Items = append(crossVendor.Items, orderFor(vendorB, 500).Items...)

	noVendor := orderFor(vendorA, 1000)
	noVendor.Items[0].Vendor = nil

	badTotal := orderFor(vendorA, 1000)
	badTotal.Items[0].TotalCents = 999

	empty := models.Order{ID: uuid.New()}

	batch, issues := BuildBatch([]models.Order{good, crossVendor, noVendor, badTotal, empty}, rate(t, "0.10"))
	if len(issues) != 4 {
		t.Fatalf("expected four skipped orders, got %d: %v", len(issues), issues)
	}
	for _, issue := range issues {
		typed := pkgerrors.As(issue.Err)
		if typed == nil || typed.Code() != pkgerrors.CodeInvariant {
			t.Fatalf("expected invariant violations, got %v", issue.Err)
		}
	}
	if len(batch.Lines) != 1 || len(batch.Lines[0].Covered) != 1 {
		t.Fatalf("expected only the valid order to survive, got %+v", batch.Lines)
	}
	if batch.Lines[0].Covered[0].OrderID != good.ID {
		t.Fatalf("wrong surviving order: %v", batch.Lines[0].Covered)
	}
}

func TestBuildBatchIdempotencyKeyIsStable(t *testing.T) {
	vendor := testVendor("v@x.test")
	order1 := orderFor(vendor, 10000)
	order2 := orderFor(vendor, 5000)

	first, _ := BuildBatch([]models.Order{order1, order2}, rate(t, "0.10"))
	// same coverage, different scan order
	second, _ := BuildBatch([]models.Order{order2, order1}, rate(t, "0.10"))

	if first.IdempotencyKey == "" {
		t.Fatal("expected non-empty idempotency key")
	}
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Fatalf("key should not depend on scan order: %s vs %s", first.IdempotencyKey, second.IdempotencyKey)
	}

	other, _ := BuildBatch([]models.Order{order1}, rate(t, "0.10"))
	if other.IdempotencyKey == first.IdempotencyKey {
		t.Fatal("different coverage must produce a different key")
	}
}

func TestBatchRequestCarriesVendorReferences(t *testing.T) {
	vendor := testVendor("v@x.test")
	order := orderFor(vendor, 10000)

	batch, _ := BuildBatch([]models.Order{order}, rate(t, "0.10"))
	req := batch.Request("USD", "test run")

	if req.IdempotencyKey != batch.IdempotencyKey {
		t.Fatalf("request key mismatch: %s vs %s", req.IdempotencyKey, batch.IdempotencyKey)
	}
	if len(req.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(req.Items))
	}
	item := req.Items[0]
	if item.Reference != vendor.ID.String() || item.Receiver != "v@x.test" {
		t.Fatalf("unexpected item identity: %+v", item)
	}
	if item.AmountCents != 9000 || item.Currency != "USD" {
		t.Fatalf("unexpected item amount: %+v", item)
	}
}
