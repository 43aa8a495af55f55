package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChargeRequest is what the payment processor needs to collect a
// commission from a vendor's stored payment method.
type ChargeRequest struct {
	JobID               string
	VendorID            string
	ProcessorCustomerID string
	PaymentMethod       string
	Amount              float64
	Description         string
}

type ChargeResult struct {
	Reference   string
	ProcessedAt time.Time
}

// Processor collects a commission charge. Implementations must be safe to
// call repeatedly for the same job; the orchestrator's upsert keeps the
// record unique regardless.
type Processor interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// SimulatedProcessor stands in for a real payment processor. It approves
// every charge and mints a reference, which is enough for the settlement
// path to be exercised end to end.
type SimulatedProcessor struct {
	now func() time.Time
}

func NewSimulatedProcessor() *SimulatedProcessor {
	return &SimulatedProcessor{now: time.Now}
}

func (p *SimulatedProcessor) Name() string { return "simulated" }

func (p *SimulatedProcessor) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	_ = ctx
	return ChargeResult{
		Reference:   "sim_" + uuid.NewString(),
		ProcessedAt: p.now().UTC(),
	}, nil
}
