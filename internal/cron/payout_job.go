package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/pubsub"
)

// payoutRunner is the engine surface the job drives.
type payoutRunner interface {
	RunPayoutCycle(ctx context.Context) (payouts.Summary, error)
}

// alertPublisher pages operators about outcomes a rerun alone will not fix.
type alertPublisher interface {
	PublishAlert(ctx context.Context, alert pubsub.Alert) error
}

// PayoutJobParams configure the scheduled payout cycle.
type PayoutJobParams struct {
	Logger *logger.Logger
	Engine payoutRunner
	Alerts alertPublisher // optional
}

// NewPayoutJob builds the job that runs one payout cycle per schedule tick.
func NewPayoutJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("payout engine required")
	}
	return &payoutJob{
		logg:   params.Logger,
		engine: params.Engine,
		alerts: params.Alerts,
	}, nil
}

type payoutJob struct {
	logg   *logger.Logger
	engine payoutRunner
	alerts alertPublisher
}

func (j *payoutJob) Name() string { return "payout-cycle" }

func (j *payoutJob) Run(ctx context.Context) error {
	summary, err := j.engine.RunPayoutCycle(ctx)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"orders_processed": summary.OrdersProcessed,
		"vendors_paid":     summary.VendorsPaid,
		"orders_paid":      summary.OrdersPaid,
		"cents_disbursed":  summary.TotalDisbursedCents,
		"skipped_orders":   summary.SkippedOrders,
		"rejected_lines":   summary.RejectedLines,
		"dry_run":          summary.DryRun,
	})
	if err != nil {
		errCtx := j.logg.WithField(logCtx, "error_dump", pkgerrors.Dump(err))
		j.logg.Error(errCtx, "payout cycle finished with errors", err)
	} else {
		j.logg.Info(logCtx, "payout cycle summary")
	}

	j.publishAlerts(ctx, summary, err)
	return err
}

// publishAlerts raises operator attention for alerting errors (rejected
// batches, broken invariants) and for individual rejected vendor lines, which
// stay pending until their underlying data is fixed.
func (j *payoutJob) publishAlerts(ctx context.Context, summary payouts.Summary, runErr error) {
	if j.alerts == nil {
		return
	}

	if runErr != nil && pkgerrors.ShouldAlert(runErr) {
		j.publish(ctx, pubsub.Alert{
			Severity: "critical",
			Summary:  fmt.Sprintf("payout cycle needs intervention: %v", runErr),
		})
	}
	if summary.RejectedLines > 0 {
		j.publish(ctx, pubsub.Alert{
			Severity: "warning",
			Summary: fmt.Sprintf("%d vendor line(s) rejected by the provider; covered orders stay pending until fixed",
				summary.RejectedLines),
		})
	}
	if summary.SkippedOrders > 0 {
		j.publish(ctx, pubsub.Alert{
			Severity: "warning",
			Summary:  fmt.Sprintf("%d order(s) skipped for invariant violations", summary.SkippedOrders),
		})
	}
}

func (j *payoutJob) publish(ctx context.Context, alert pubsub.Alert) {
	if err := j.alerts.PublishAlert(ctx, alert); err != nil {
		j.logg.Error(ctx, "publishing operator alert", err)
	}
}
