package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/pubsub"
)

type fakeEngine struct {
	summary payouts.Summary
	err     error
	runs    int
}

func (f *fakeEngine) RunPayoutCycle(ctx context.Context) (payouts.Summary, error) {
	f.runs++
	return f.summary, f.err
}

type fakeAlerts struct {
	published []pubsub.Alert
	err       error
}

func (f *fakeAlerts) PublishAlert(ctx context.Context, alert pubsub.Alert) error {
	f.published = append(f.published, alert)
	return f.err
}

func newPayoutJob(t *testing.T, engine *fakeEngine, alerts alertPublisher) Job {
	t.Helper()
	job, err := NewPayoutJob(PayoutJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Engine: engine,
		Alerts: alerts,
	})
	if err != nil {
		t.Fatalf("NewPayoutJob: %v", err)
	}
	return job
}

func TestPayoutJobRunsEngineAndReportsName(t *testing.T) {
	engine := &fakeEngine{summary: payouts.Summary{OrdersPaid: 3}}
	job := newPayoutJob(t, engine, nil)

	if job.Name() != "payout-cycle" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if engine.runs != 1 {
		t.Fatalf("expected one engine run, got %d", engine.runs)
	}
}

func TestPayoutJobPropagatesEngineError(t *testing.T) {
	wantErr := errors.New("boom")
	engine := &fakeEngine{err: wantErr}
	job := newPayoutJob(t, engine, nil)

	if err := job.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected engine error to propagate, got %v", err)
	}
}

func TestPayoutJobLogsErrorDiagnostics(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: buf})
	engine := &fakeEngine{err: pkgerrors.New(pkgerrors.CodeDataAccess, "connection reset")}
	job, err := NewPayoutJob(PayoutJobParams{Logger: logg, Engine: engine})
	if err != nil {
		t.Fatalf("NewPayoutJob: %v", err)
	}

	_ = job.Run(context.Background())
	if !bytes.Contains(buf.Bytes(), []byte("error_dump")) {
		t.Fatalf("expected error diagnostics on the failure log; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("top_message")) {
		t.Fatalf("expected flattened error chain on the failure log; entry=%s", buf.String())
	}
}

func TestPayoutJobAlertsOnAlertingErrors(t *testing.T) {
	alerts := &fakeAlerts{}
	engine := &fakeEngine{err: pkgerrors.New(pkgerrors.CodeProviderRejected, "credentials revoked")}
	job := newPayoutJob(t, engine, alerts)

	_ = job.Run(context.Background())
	if len(alerts.published) != 1 {
		t.Fatalf("expected one critical alert, got %d", len(alerts.published))
	}
	if alerts.published[0].Severity != "critical" {
		t.Fatalf("unexpected severity %q", alerts.published[0].Severity)
	}
}

func TestPayoutJobDoesNotAlertOnTransientOutage(t *testing.T) {
	alerts := &fakeAlerts{}
	engine := &fakeEngine{err: pkgerrors.New(pkgerrors.CodeProviderUnavailable, "timeout")}
	job := newPayoutJob(t, engine, alerts)

	_ = job.Run(context.Background())
	if len(alerts.published) != 0 {
		t.Fatalf("transient outages retry silently, got %d alerts", len(alerts.published))
	}
}

func TestPayoutJobAlertsOnRejectedLinesAndSkips(t *testing.T) {
	alerts := &fakeAlerts{}
	engine := &fakeEngine{summary: payouts.Summary{RejectedLines: 2, SkippedOrders: 1}}
	job := newPayoutJob(t, engine, alerts)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(alerts.published) != 2 {
		t.Fatalf("expected rejection and skip warnings, got %d", len(alerts.published))
	}
	for _, alert := range alerts.published {
		if alert.Severity != "warning" {
			t.Fatalf("unexpected severity %q", alert.Severity)
		}
	}
}

func TestPayoutJobWorksWithoutAlertPublisher(t *testing.T) {
	engine := &fakeEngine{summary: payouts.Summary{RejectedLines: 5}}
	job := newPayoutJob(t, engine, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run without alerts: %v", err)
	}
}

func TestNewPayoutJobValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewPayoutJob(PayoutJobParams{Engine: &fakeEngine{}}); err == nil {
		t.Fatal("expected missing logger to be rejected")
	}
	if _, err := NewPayoutJob(PayoutJobParams{Logger: logg}); err == nil {
		t.Fatal("expected missing engine to be rejected")
	}
}
