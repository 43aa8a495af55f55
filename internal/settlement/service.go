// Package settlement sequences job completion, commission evaluation, and
// charge issuance into one idempotent operation.
package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/torqueops/dispatch/internal/commission"
	"github.com/torqueops/dispatch/internal/lifecycle"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/notify"
	"github.com/torqueops/dispatch/internal/store"
)

var (
	ErrInvalidAmount   = errors.New("reported amount must be positive")
	ErrNotSettleable   = errors.New("job has no failed or pending commission to retry")
	reasonNoPaymentSet = "No payment method on file"
)

type Service struct {
	store     store.Store
	engine    *commission.Engine
	processor Processor
	notifier  *notify.Notifier
	now       func() time.Time
}

func New(st store.Store, engine *commission.Engine, processor Processor, notifier *notify.Notifier) *Service {
	return &Service{
		store:     st,
		engine:    engine,
		processor: processor,
		notifier:  notifier,
		now:       time.Now,
	}
}

// CompleteParams carries the vendor-reported completion details.
type CompleteParams struct {
	Amount float64
	Method string
	Note   string
	Actor  string
	// AutoCharge overrides the engine's recommendation when set.
	AutoCharge *bool
}

// CompleteJob transitions the job to completed, records the reported
// payment and commission verdict, persists the job, and only then issues
// the charge. A crash after the first persist never loses the completion;
// the charge upsert keyed on job id makes reruns converge on one row.
func (s *Service) CompleteJob(ctx context.Context, jobID string, p CompleteParams) (model.Job, error) {
	if p.Amount <= 0 {
		return model.Job{}, ErrInvalidAmount
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}

	ev := s.engine.Evaluate(job, p.Amount)

	now := s.now().UTC()
	if err := lifecycle.Apply(&job, model.JobCompleted, now); err != nil {
		return model.Job{}, err
	}

	job.ReportedPayment = &model.ReportedPayment{
		Amount:     commission.Round2(p.Amount),
		Method:     p.Method,
		Note:       p.Note,
		Actor:      p.Actor,
		ReportedAt: now,
	}
	job.ExpectedRevenue = ev.ExpectedRevenue
	job.Flags.UnderReport = ev.UnderReport
	job.Flags.UnderReportReason = ev.UnderReportReason

	autoCharge := ev.ShouldAutoCharge
	if p.AutoCharge != nil {
		autoCharge = *p.AutoCharge
	}

	status := model.CommissionSkipped
	if autoCharge && job.VendorID != "" {
		status = model.CommissionPending
	}
	job.Commission = &model.Commission{
		Rate:   ev.Rate,
		Amount: ev.CommissionAmount,
		Status: status,
	}

	// Persist the completion before any charge attempt.
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("persist completion: %w", err)
	}

	if job.Commission.Status == model.CommissionPending {
		if err := s.issueCharge(ctx, &job, ev); err != nil {
			return model.Job{}, err
		}
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return model.Job{}, fmt.Errorf("persist commission outcome: %w", err)
		}
	}

	slog.InfoContext(ctx, "job_completed",
		"job_id", job.ID,
		"vendor_id", job.VendorID,
		"reported_amount", job.ReportedPayment.Amount,
		"commission_status", job.Commission.Status,
		"under_report", job.Flags.UnderReport,
	)

	s.notifier.JobCompleted(ctx, job)
	return job, nil
}

// RetryCharge re-runs only the charge step for a completed job whose
// commission did not go through, without touching the recorded completion.
func (s *Service) RetryCharge(ctx context.Context, jobID string) (model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	if job.Status != model.JobCompleted || job.Commission == nil || job.ReportedPayment == nil {
		return model.Job{}, ErrNotSettleable
	}
	switch job.Commission.Status {
	case model.CommissionFailed, model.CommissionPending:
	default:
		return model.Job{}, ErrNotSettleable
	}

	ev := s.engine.Evaluate(job, job.ReportedPayment.Amount)
	job.Commission.Status = model.CommissionPending
	if err := s.issueCharge(ctx, &job, ev); err != nil {
		return model.Job{}, err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("persist commission outcome: %w", err)
	}
	return job, nil
}

// issueCharge runs the charge step and mirrors the outcome onto the job's
// commission block. A missing payment method is a recorded failure, not an
// error; only store/dependency problems propagate.
func (s *Service) issueCharge(ctx context.Context, job *model.Job, ev commission.Evaluation) error {
	now := s.now().UTC()
	charge := model.CommissionCharge{
		ID:               generateID("chg"),
		JobID:            job.ID,
		VendorID:         job.VendorID,
		ReportedAmount:   ev.ReportedAmount,
		CommissionRate:   ev.Rate,
		CommissionAmount: ev.CommissionAmount,
		Status:           model.ChargePending,
		Processor:        s.processor.Name(),
		RequestedAt:      now,
	}

	vendor, err := s.store.GetVendor(ctx, job.VendorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load vendor: %w", err)
	}

	if err != nil || vendor.Billing.DefaultPaymentMethod == "" {
		charge.Status = model.ChargeFailed
		charge.FailureReason = reasonNoPaymentSet
		saved, err := s.store.UpsertChargeByJob(ctx, charge)
		if err != nil {
			return fmt.Errorf("record failed charge: %w", err)
		}
		job.Commission.Status = model.CommissionFailed
		job.Commission.FailureReason = reasonNoPaymentSet
		job.Commission.ChargeID = saved.ID
		slog.WarnContext(ctx, "commission charge failed",
			"job_id", job.ID, "vendor_id", job.VendorID, "reason", reasonNoPaymentSet)
		return nil
	}

	result, chargeErr := s.processor.Charge(ctx, ChargeRequest{
		JobID:               job.ID,
		VendorID:            job.VendorID,
		ProcessorCustomerID: vendor.Billing.ProcessorCustomerID,
		PaymentMethod:       vendor.Billing.DefaultPaymentMethod,
		Amount:              ev.CommissionAmount,
		Description:         fmt.Sprintf("Commission for job %s", job.ID),
	})
	if chargeErr != nil {
		charge.Status = model.ChargeFailed
		charge.FailureReason = chargeErr.Error()
	} else {
		processedAt := result.ProcessedAt
		charge.Status = model.ChargeSucceeded
		charge.ProcessorRef = result.Reference
		charge.ProcessedAt = &processedAt
	}

	saved, err := s.store.UpsertChargeByJob(ctx, charge)
	if err != nil {
		return fmt.Errorf("record charge: %w", err)
	}

	job.Commission.ChargeID = saved.ID
	if charge.Status == model.ChargeSucceeded {
		job.Commission.Status = model.CommissionCharged
		job.Commission.ChargedAt = charge.ProcessedAt
		job.Commission.FailureReason = ""
	} else {
		job.Commission.Status = model.CommissionFailed
		job.Commission.FailureReason = charge.FailureReason
	}
	return nil
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}
