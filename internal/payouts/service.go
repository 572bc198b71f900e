package payouts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/internal/ledger"
	pkgdb "github.com/angelmondragon/vendor-payouts/pkg/db"
	"github.com/angelmondragon/vendor-payouts/pkg/disburse"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/metrics"
)

// DisbursementProvider is the outbound surface of the payment provider. The
// only implementation that moves money is disburse.Client; tests substitute
// fakes.
type DisbursementProvider interface {
	SubmitBatch(ctx context.Context, req disburse.BatchRequest) (*disburse.BatchResult, error)
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Summary is the per-run result handed back to the scheduler.
type Summary struct {
	OrdersProcessed     int
	VendorsPaid         int
	OrdersPaid          int
	TotalDisbursedCents int64
	SkippedOrders       int
	RejectedLines       int
	DryRun              bool
}

// Params configure the payout engine.
type Params struct {
	Logger      *logger.Logger
	Tx          TxRunner
	Repo        Repository
	Ledger      ledger.Service
	Provider    DisbursementProvider
	Metrics     *metrics.PayoutMetrics
	DefaultRate decimal.Decimal
	Currency    string
	DryRun      bool
}

// settledOnceConstraint is the partial unique index guaranteeing at most one
// settlement event per order and vendor.
const settledOnceConstraint = "uq_ledger_events_settled_once"

// Service runs payout cycles. It holds no state between invocations; every
// cycle reads, computes, calls out, writes, and terminates.
type Service struct {
	logg        *logger.Logger
	tx          TxRunner
	repo        Repository
	ledger      ledger.Service
	provider    DisbursementProvider
	metrics     *metrics.PayoutMetrics
	defaultRate decimal.Decimal
	currency    string
	dryRun      bool
}

// NewService builds a payout engine after validating its dependencies.
func NewService(params Params) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("disbursement provider required")
	}
	if params.DefaultRate.IsNegative() || params.DefaultRate.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("default commission rate %s outside [0, 1)", params.DefaultRate)
	}
	currency := params.Currency
	if currency == "" {
		currency = string(enums.CurrencyUSD)
	}
	return &Service{
		logg:        params.Logger,
		tx:          params.Tx,
		repo:        params.Repo,
		ledger:      params.Ledger,
		provider:    params.Provider,
		metrics:     params.Metrics,
		defaultRate: params.DefaultRate,
		currency:    currency,
		dryRun:      params.DryRun,
	}, nil
}

// RunPayoutCycle is the scheduler entry point: scan payable orders, aggregate
// per-vendor lines, submit one batch, and finalize accepted lines. Per-order
// and per-line failures never abort the run; data-store and whole-batch
// provider failures do.
func (s *Service) RunPayoutCycle(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	ctx = s.logg.WithRunID(ctx, runID)
	summary := Summary{DryRun: s.dryRun}

	orders, err := s.repo.FindPayableOrders(ctx)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDataAccess, err, "fetching payable orders")
	}
	summary.OrdersProcessed = len(orders)
	if len(orders) == 0 {
		s.logg.Info(ctx, "no payable orders; cycle is a no-op")
		return summary, nil
	}

	batch, issues := BuildBatch(orders, s.defaultRate)
	summary.SkippedOrders = len(issues)
	s.metrics.AddOrdersSkipped(len(issues))
	for _, issue := range issues {
		s.reportSkippedOrder(ctx, issue)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"candidate_orders": len(orders),
		"vendor_lines":     len(batch.Lines),
		"zero_lines":       len(batch.ZeroLines),
	})

	if s.dryRun {
		s.logDryRun(ctx, batch)
		return summary, nil
	}

	result, err := s.provider.SubmitBatch(ctx, batch.Request(s.currency, "scheduled vendor payout"))
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeProviderUnavailable {
			s.metrics.IncProviderUnavailable()
		}
		// Unknown or rejected outcome: mark nothing paid; the provider
		// dedupes a resubmission by the idempotency key next run.
		return summary, err
	}

	batchRef := result.BatchID
	if batchRef == "" {
		batchRef = batch.IdempotencyKey
	}
	ctx = s.logg.WithBatchRef(ctx, batchRef)
	s.recordSubmissions(ctx, batch)

	var runErr error
	for _, line := range batch.Lines {
		outcome, outcomeErr := result.OutcomeFor(line.VendorID.String())
		if outcomeErr != nil {
			// No verdict for this line; safest to leave its orders
			// pending and let the next run resubmit.
			runErr = multierr.Append(runErr, pkgerrors.Wrap(
				pkgerrors.CodeProviderRejected, outcomeErr,
				fmt.Sprintf("vendor %s missing from provider response", line.VendorID)))
			continue
		}
		if !outcome.Accepted() {
			summary.RejectedLines++
			s.metrics.AddLinesRejected(1)
			s.reportRejectedLine(ctx, line, batchRef, outcome.Reason)
			continue
		}
		if err := s.finalizeLine(ctx, line, batchRef); err != nil {
			runErr = multierr.Append(runErr, err)
			continue
		}
		summary.VendorsPaid++
		summary.OrdersPaid += len(line.Covered)
		summary.TotalDisbursedCents += line.NetCents
	}

	for _, line := range batch.ZeroLines {
		if err := s.finalizeLine(ctx, line, batchRef); err != nil {
			runErr = multierr.Append(runErr, err)
			continue
		}
		summary.OrdersPaid += len(line.Covered)
	}

	s.metrics.AddVendorsPaid(summary.VendorsPaid)
	s.metrics.AddOrdersPaid(summary.OrdersPaid)
	s.metrics.AddCentsDisbursed(summary.TotalDisbursedCents)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendors_paid":    summary.VendorsPaid,
		"orders_paid":     summary.OrdersPaid,
		"cents_disbursed": summary.TotalDisbursedCents,
		"rejected_lines":  summary.RejectedLines,
		"skipped_orders":  summary.SkippedOrders,
	}), "payout cycle complete")
	return summary, runErr
}

// finalizeLine marks one vendor line's covered orders paid in a single
// transaction, all-or-nothing. The conditional update re-verifies each order
// is still pending; a shortfall means a concurrent run claimed some of them,
// so the whole line rolls back and is retried next cycle.
func (s *Service) finalizeLine(ctx context.Context, line VendorLine, batchRef string) error {
	lineCtx := s.logg.WithVendorID(ctx, line.VendorID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).MarkOrdersPaid(ctx, line.OrderIDs(), batchRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDataAccess, err,
				fmt.Sprintf("marking vendor %s orders paid", line.VendorID))
		}
		if updated != int64(len(line.Covered)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("vendor %s: %d of %d orders still pending", line.VendorID, updated, len(line.Covered)))
		}
		txLedger := s.ledger.WithTx(tx)
		for _, covered := range line.Covered {
			if _, err := txLedger.RecordEvent(ctx, ledger.RecordLedgerEventInput{
				OrderID:     covered.OrderID,
				VendorID:    line.VendorID,
				Type:        enums.LedgerEventTypePayoutSettled,
				AmountCents: covered.NetCents,
				BatchRef:    batchRef,
			}); err != nil {
				// The settled-once index already holds an event for this
				// order; keep the existing record and move on.
				if pkgdb.IsUniqueViolation(err, settledOnceConstraint) {
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeDataAccess, err, "recording settlement")
			}
		}
		return nil
	})
	if err != nil {
		s.logg.Error(lineCtx, "vendor line finalization rolled back", err)
		return err
	}
	s.logg.Info(s.logg.WithField(lineCtx, "orders", len(line.Covered)), "vendor line settled")
	return nil
}

// recordSubmissions writes a submission audit event per covered order. These
// are best-effort: a ledger hiccup here must not block settlement.
func (s *Service) recordSubmissions(ctx context.Context, batch *Batch) {
	for _, line := range batch.Lines {
		for _, covered := range line.Covered {
			if _, err := s.ledger.RecordEvent(ctx, ledger.RecordLedgerEventInput{
				OrderID:     covered.OrderID,
				VendorID:    line.VendorID,
				Type:        enums.LedgerEventTypePayoutSubmitted,
				AmountCents: covered.NetCents,
				BatchRef:    batch.IdempotencyKey,
			}); err != nil {
				s.logg.Error(ctx, "recording submission event", err)
			}
		}
	}
}

func (s *Service) reportRejectedLine(ctx context.Context, line VendorLine, batchRef, reason string) {
	lineCtx := s.logg.WithVendorID(ctx, line.VendorID.String())
	s.logg.Warn(s.logg.WithField(lineCtx, "reason", reason), "vendor line rejected by provider")
	metadata, _ := json.Marshal(map[string]string{"reason": reason})
	for _, covered := range line.Covered {
		if _, err := s.ledger.RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:     covered.OrderID,
			VendorID:    line.VendorID,
			Type:        enums.LedgerEventTypePayoutLineRejected,
			AmountCents: covered.NetCents,
			BatchRef:    batchRef,
			Metadata:    metadata,
		}); err != nil {
			s.logg.Error(lineCtx, "recording rejection event", err)
		}
	}
}

func (s *Service) reportSkippedOrder(ctx context.Context, issue OrderIssue) {
	orderCtx := s.logg.WithField(ctx, "order_id", issue.OrderID.String())
	s.logg.Warn(orderCtx, fmt.Sprintf("order skipped: %v", issue.Err))
	if issue.VendorID == uuid.Nil {
		return
	}
	metadata, _ := json.Marshal(map[string]string{"reason": issue.Err.Error()})
	if _, err := s.ledger.RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:  issue.OrderID,
		VendorID: issue.VendorID,
		Type:     enums.LedgerEventTypePayoutOrderSkipped,
		Metadata: metadata,
	}); err != nil {
		s.logg.Error(orderCtx, "recording skip event", err)
	}
}

func (s *Service) logDryRun(ctx context.Context, batch *Batch) {
	for _, line := range batch.Lines {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"vendor_id": line.VendorID.String(),
			"net_cents": line.NetCents,
			"orders":    len(line.Covered),
			"currency":  s.currency,
			"batch_key": batch.IdempotencyKey,
		}), "dry run: vendor line computed")
	}
	s.logg.Info(ctx, "dry run complete; no provider call, no state changes")
}
