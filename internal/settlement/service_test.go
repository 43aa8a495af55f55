package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueops/dispatch/internal/commission"
	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/lifecycle"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/notify"
	"github.com/torqueops/dispatch/internal/store"
)

func testEngine() *commission.Engine {
	return commission.NewEngine(config.CommissionConfig{
		Enabled:           true,
		AutoCharge:        true,
		Rate:              0.30,
		AbsoluteTolerance: 25,
		PercentTolerance:  0.15,
	})
}

func testNotifier(st store.Store) *notify.Notifier {
	ok := notify.SenderFunc(func(ctx context.Context, recipient, body string) error { return nil })
	cfg := config.NotifyConfig{
		AttemptTimeout:   time.Second,
		MaxAttempts:      1,
		BackoffBase:      time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
	return notify.NewNotifier(
		notify.NewResilientSender("sms", ok, st, cfg),
		notify.NewResilientSender("push", ok, st, cfg),
	)
}

func seedAssignedJob(t *testing.T, st *store.MemoryStore, withBilling bool) model.Job {
	t.Helper()
	ctx := context.Background()

	vendor := model.Vendor{ID: "ven_1", Name: "Ace Towing", Phone: "+15550001111", Active: true}
	if withBilling {
		vendor.Billing = model.BillingProfile{
			ProcessorCustomerID:  "cus_123",
			DefaultPaymentMethod: "pm_123",
		}
	}
	require.NoError(t, st.PutVendor(ctx, vendor))

	job := model.Job{
		ID:          "job_1",
		CustomerID:  "cust_1",
		Status:      model.JobUnassigned,
		Urgency:     model.UrgencyStandard,
		BidMode:     model.BidModeOpen,
		QuotedPrice: 120,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, lifecycle.Apply(&job, model.JobAssigned, time.Now().UTC()))
	job.VendorID = vendor.ID
	job.VendorName = vendor.Name
	job.VendorPhone = vendor.Phone
	require.NoError(t, st.CreateJob(ctx, job))
	return job
}

func TestCompleteJobRejectsNonPositiveAmount(t *testing.T) {
	st := store.NewMemoryStore()
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	_, err := svc.CompleteJob(context.Background(), "job_1", CompleteParams{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CompleteJob(context.Background(), "job_1", CompleteParams{Amount: -5})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCompleteJobChargesCommission(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, true)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	job, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120, Method: "card", Actor: "vendor"})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.ReportedPayment)
	assert.Equal(t, 120.0, job.ReportedPayment.Amount)

	require.NotNil(t, job.Commission)
	assert.Equal(t, model.CommissionCharged, job.Commission.Status)
	assert.InDelta(t, 36, job.Commission.Amount, 0.001)
	require.NotNil(t, job.Commission.ChargedAt)

	charge, err := st.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeSucceeded, charge.Status)
	assert.Equal(t, "simulated", charge.Processor)
	assert.NotEmpty(t, charge.ProcessorRef)
}

func TestCompleteJobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, true)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	first, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120})
	require.NoError(t, err)
	firstCharge, err := st.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)

	second, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120})
	require.NoError(t, err)

	assert.Equal(t, first.Commission.Amount, second.Commission.Amount)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt, "completion stamp is set-once")

	secondCharge, err := st.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, firstCharge.ID, secondCharge.ID, "re-running settlement keeps one charge row")
	assert.Equal(t, firstCharge.RequestedAt, secondCharge.RequestedAt)
}

func TestCompleteJobNoPaymentMethodIsRecordedNotRaised(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, false)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	job, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120})
	require.NoError(t, err, "missing payment method is a normal recorded outcome")

	require.NotNil(t, job.Commission)
	assert.Equal(t, model.CommissionFailed, job.Commission.Status)
	assert.Equal(t, "No payment method on file", job.Commission.FailureReason)

	charge, err := st.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeFailed, charge.Status)
	assert.Equal(t, "No payment method on file", charge.FailureReason)

	// The completion itself survived.
	assert.Equal(t, model.JobCompleted, job.Status)
}

func TestCompleteJobAutoChargeOverride(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, true)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	off := false
	job, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120, AutoCharge: &off})
	require.NoError(t, err)
	assert.Equal(t, model.CommissionSkipped, job.Commission.Status)

	_, err = st.GetChargeByJob(ctx, "job_1")
	assert.ErrorIs(t, err, store.ErrNotFound, "skipped commission issues no charge")
}

func TestCompleteJobUnassignedVendorSkips(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	job := model.Job{
		ID: "job_2", Status: model.JobAssigned, QuotedPrice: 100,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(ctx, job))
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	out, err := svc.CompleteJob(ctx, "job_2", CompleteParams{Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, model.CommissionSkipped, out.Commission.Status)
}

func TestCompleteJobFlagsUnderReport(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, true)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	job, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 80})
	require.NoError(t, err)

	assert.True(t, job.Flags.UnderReport)
	assert.Contains(t, job.Flags.UnderReportReason, "80.00")
	assert.Contains(t, job.Flags.UnderReportReason, "120.00")
}

func TestRetryChargeAfterBillingFixed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, false)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	job, err := svc.CompleteJob(ctx, "job_1", CompleteParams{Amount: 120})
	require.NoError(t, err)
	require.Equal(t, model.CommissionFailed, job.Commission.Status)

	// Vendor adds a payment method; the charge alone is retried.
	vendor, err := st.GetVendor(ctx, "ven_1")
	require.NoError(t, err)
	vendor.Billing = model.BillingProfile{ProcessorCustomerID: "cus_1", DefaultPaymentMethod: "pm_1"}
	require.NoError(t, st.PutVendor(ctx, vendor))

	retried, err := svc.RetryCharge(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.CommissionCharged, retried.Commission.Status)
	assert.Equal(t, *job.CompletedAt, *retried.CompletedAt, "completion not re-run")

	charge, err := st.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeSucceeded, charge.Status)
}

func TestRetryChargeRejectsNonSettleable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAssignedJob(t, st, true)
	svc := New(st, testEngine(), NewSimulatedProcessor(), testNotifier(st))

	_, err := svc.RetryCharge(ctx, "job_1")
	assert.ErrorIs(t, err, ErrNotSettleable, "job not completed yet")

	_, err = svc.RetryCharge(ctx, "job_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
