package payouts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/internal/ledger"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/disburse"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

type markCall struct {
	orderIDs []uuid.UUID
	batchRef string
}

type fakeRepo struct {
	orders    []models.Order
	findErr   error
	markCalls []markCall
	markFn    func(orderIDs []uuid.UUID, batchRef string) (int64, error)
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindPayableOrders(ctx context.Context) ([]models.Order, error) {
	return f.orders, f.findErr
}

func (f *fakeRepo) MarkOrdersPaid(ctx context.Context, orderIDs []uuid.UUID, batchRef string) (int64, error) {
	f.markCalls = append(f.markCalls, markCall{orderIDs: orderIDs, batchRef: batchRef})
	if f.markFn != nil {
		return f.markFn(orderIDs, batchRef)
	}
	return int64(len(orderIDs)), nil
}

type fakeLedger struct {
	events    []ledger.RecordLedgerEventInput
	recordErr func(input ledger.RecordLedgerEventInput) error
}

func (f *fakeLedger) WithTx(tx *gorm.DB) ledger.Service { return f }

func (f *fakeLedger) RecordEvent(ctx context.Context, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if f.recordErr != nil {
		if err := f.recordErr(input); err != nil {
			return nil, err
		}
	}
	f.events = append(f.events, input)
	return &models.LedgerEvent{}, nil
}

func (f *fakeLedger) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	return false, nil
}

func (f *fakeLedger) EventsForBatch(ctx context.Context, batchRef string) ([]models.LedgerEvent, error) {
	return nil, nil
}

func (f *fakeLedger) countByType(eventType enums.LedgerEventType) int {
	count := 0
	for _, event := range f.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

type fakeProvider struct {
	calls  int
	result *disburse.BatchResult
	err    error
}

func (f *fakeProvider) SubmitBatch(ctx context.Context, req disburse.BatchRequest) (*disburse.BatchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	// accept everything by default
	result := &disburse.BatchResult{BatchID: "batch-test"}
	for _, item := range req.Items {
		result.Items = append(result.Items, disburse.ItemOutcome{
			Reference: item.Reference,
			ItemID:    "item-" + item.Reference,
			Status:    disburse.OutcomeAccepted,
		})
	}
	return result, nil
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	return fn(nil)
}

type engineFixture struct {
	repo     *fakeRepo
	ledger   *fakeLedger
	provider *fakeProvider
	tx       *fakeTx
	service  *Service
}

func newEngine(t *testing.T, orders []models.Order, opts ...func(*Params)) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		repo:     &fakeRepo{orders: orders},
		ledger:   &fakeLedger{},
		provider: &fakeProvider{},
		tx:       &fakeTx{},
	}
	params := Params{
		Logger:      logger.New(logger.Options{ServiceName: "payouts-test"}),
		Tx:          fx.tx,
		Repo:        fx.repo,
		Ledger:      fx.ledger,
		Provider:    fx.provider,
		DefaultRate: rate(t, "0.10"),
		Currency:    "USD",
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fx.service = svc
	return fx
}

func TestRunPayoutCycleEmptyCandidateSetIsNoOp(t *testing.T) {
	fx := newEngine(t, nil)

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("RunPayoutCycle: %v", err)
	}
	if summary.OrdersProcessed != 0 || summary.OrdersPaid != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if fx.provider.calls != 0 {
		t.Fatal("provider should not be contacted when nothing is payable")
	}
	if len(fx.repo.markCalls) != 0 {
		t.Fatal("no orders should be written")
	}
}

func TestRunPayoutCycleHappyPath(t *testing.T) {
	vendor := testVendor("v@x.test")
	order1 := orderFor(vendor, 10000)
	order2 := orderFor(vendor, 5000)
	fx := newEngine(t, []models.Order{order1, order2})

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("RunPayoutCycle: %v", err)
	}
	if summary.VendorsPaid != 1 || summary.OrdersPaid != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.TotalDisbursedCents != 13500 {
		t.Fatalf("expected 13500 disbursed, got %d", summary.TotalDisbursedCents)
	}
	if len(fx.repo.markCalls) != 1 {
		t.Fatalf("expected one finalize call, got %d", len(fx.repo.markCalls))
	}
	call := fx.repo.markCalls[0]
	if len(call.orderIDs) != 2 || call.batchRef != "batch-test" {
		t.Fatalf("unexpected finalize call %+v", call)
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutSettled); got != 2 {
		t.Fatalf("expected 2 settlement events, got %d", got)
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutSubmitted); got != 2 {
		t.Fatalf("expected 2 submission events, got %d", got)
	}
}

func TestRunPayoutCycleProviderUnavailableMarksNothing(t *testing.T) {
	vendor := testVendor("v@x.test")
	fx := newEngine(t, []models.Order{orderFor(vendor, 10000)})
	fx.provider.err = pkgerrors.New(pkgerrors.CodeProviderUnavailable, "provider timed out")

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err == nil {
		t.Fatal("expected run error")
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("provider outage should be retryable, got %v", err)
	}
	if summary.VendorsPaid != 0 || summary.OrdersPaid != 0 {
		t.Fatalf("nothing should be paid on unknown outcome: %+v", summary)
	}
	if len(fx.repo.markCalls) != 0 {
		t.Fatal("no orders should be written on provider outage")
	}
}

func TestRunPayoutCyclePartialRejection(t *testing.T) {
	accepted := testVendor("ok@x.test")
	rejected := testVendor("bad@x.test")
	okOrder := orderFor(accepted, 10000)
	badOrder := orderFor(rejected, 5000)
	fx := newEngine(t, []models.Order{okOrder, badOrder})
	fx.provider.result = &disburse.BatchResult{
		BatchID: "batch-mixed",
		Items: []disburse.ItemOutcome{
			{Reference: accepted.ID.String(), Status: disburse.OutcomeAccepted},
			{Reference: rejected.ID.String(), Status: disburse.OutcomeRejected, Reason: "RECEIVER_UNREGISTERED"},
		},
	}

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("per-line rejection must not fail the run: %v", err)
	}
	if summary.VendorsPaid != 1 || summary.RejectedLines != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.OrdersPaid != 1 || summary.TotalDisbursedCents != 9000 {
		t.Fatalf("only the accepted vendor should settle: %+v", summary)
	}
	if len(fx.repo.markCalls) != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", len(fx.repo.markCalls))
	}
	if fx.repo.markCalls[0].orderIDs[0] != okOrder.ID {
		t.Fatalf("wrong order finalized: %v", fx.repo.markCalls[0].orderIDs)
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutLineRejected); got != 1 {
		t.Fatalf("expected 1 rejection event, got %d", got)
	}
}

func TestRunPayoutCycleDryRun(t *testing.T) {
	vendor := testVendor("v@x.test")
	fx := newEngine(t, []models.Order{orderFor(vendor, 10000)}, func(p *Params) {
		p.DryRun = true
	})

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("RunPayoutCycle: %v", err)
	}
	if !summary.DryRun {
		t.Fatal("summary should flag dry run")
	}
	if fx.provider.calls != 0 {
		t.Fatal("dry run must not contact the provider")
	}
	if len(fx.repo.markCalls) != 0 || len(fx.ledger.events) != 0 {
		t.Fatal("dry run must not write state")
	}
}

func TestRunPayoutCycleContendedLineRollsBack(t *testing.T) {
	vendor := testVendor("v@x.test")
	order1 := orderFor(vendor, 10000)
	order2 := orderFor(vendor, 5000)
	fx := newEngine(t, []models.Order{order1, order2})
	// a concurrent run already claimed one of the two orders
	fx.repo.markFn = func(orderIDs []uuid.UUID, batchRef string) (int64, error) {
		return int64(len(orderIDs)) - 1, nil
	}

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err == nil {
		t.Fatal("expected contention to surface as a run error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if summary.VendorsPaid != 0 || summary.OrdersPaid != 0 {
		t.Fatalf("contended line must not count as paid: %+v", summary)
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutSettled); got != 0 {
		t.Fatalf("no settlement events expected, got %d", got)
	}
}

func TestRunPayoutCycleDuplicateSettlementEventIsTolerated(t *testing.T) {
	vendor := testVendor("v@x.test")
	fx := newEngine(t, []models.Order{orderFor(vendor, 10000)})
	fx.ledger.recordErr = func(input ledger.RecordLedgerEventInput) error {
		if input.Type == enums.LedgerEventTypePayoutSettled {
			return errors.New(`duplicate key value violates unique constraint "uq_ledger_events_settled_once"`)
		}
		return nil
	}

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("an already-journaled settlement must not fail the line: %v", err)
	}
	if summary.VendorsPaid != 1 || summary.OrdersPaid != 1 {
		t.Fatalf("line should still settle: %+v", summary)
	}
	if len(fx.repo.markCalls) != 1 {
		t.Fatalf("orders should still be marked paid, got %d calls", len(fx.repo.markCalls))
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutSettled); got != 0 {
		t.Fatalf("duplicate settlement must not append a second event, got %d", got)
	}
}

func TestRunPayoutCycleFinalizesZeroNetVendorsLocally(t *testing.T) {
	vendor := testVendor("zero@x.test")
	zeroOrder := orderFor(vendor, 0)
	fx := newEngine(t, []models.Order{zeroOrder})

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("RunPayoutCycle: %v", err)
	}
	if fx.provider.calls != 1 {
		t.Fatalf("expected one provider call (zero-item no-op), got %d", fx.provider.calls)
	}
	if summary.VendorsPaid != 0 || summary.TotalDisbursedCents != 0 {
		t.Fatalf("zero-net vendor must not count as disbursed: %+v", summary)
	}
	if summary.OrdersPaid != 1 {
		t.Fatalf("zero-net coverage should still finalize the order: %+v", summary)
	}
	if len(fx.repo.markCalls) != 1 || fx.repo.markCalls[0].batchRef == "" {
		t.Fatalf("zero line should be stamped with a batch ref: %+v", fx.repo.markCalls)
	}
}

func TestRunPayoutCycleSkippedOrdersAreReportedNotPaid(t *testing.T) {
	vendor := testVendor("v@x.test")
	good := orderFor(vendor, 10000)
	broken := orderFor(vendor, 1000)
	broken.Items[0].TotalCents = 1 // violates qty x unit price

	fx := newEngine(t, []models.Order{good, broken})

	summary, err := fx.service.RunPayoutCycle(context.Background())
	if err != nil {
		t.Fatalf("RunPayoutCycle: %v", err)
	}
	if summary.SkippedOrders != 1 {
		t.Fatalf("expected one skipped order, got %+v", summary)
	}
	if summary.OrdersPaid != 1 {
		t.Fatalf("only the valid order should be paid: %+v", summary)
	}
	if got := fx.ledger.countByType(enums.LedgerEventTypePayoutOrderSkipped); got != 1 {
		t.Fatalf("expected 1 skip event, got %d", got)
	}
}

func TestRunPayoutCycleDataAccessErrorAborts(t *testing.T) {
	fx := newEngine(t, nil)
	fx.repo.findErr = pkgerrors.New(pkgerrors.CodeInternal, "connection reset")

	_, err := fx.service.RunPayoutCycle(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDataAccess {
		t.Fatalf("expected data access error, got %v", err)
	}
	if fx.provider.calls != 0 {
		t.Fatal("run must abort before any external call")
	}
}
