package store

import (
	"context"
	"errors"
	"time"

	"github.com/torqueops/dispatch/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSelectionConflict means the job already carries a different
	// selected bid; the caller must not overwrite it.
	ErrSelectionConflict = errors.New("a different bid was already selected")
)

type JobStore interface {
	CreateJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (model.Job, error)
	GetJobByVendorToken(ctx context.Context, token string) (model.Job, error)
	GetJobByCustomerToken(ctx context.Context, token string) (model.Job, error)
	UpdateJob(ctx context.Context, job model.Job) error
	// ClaimBidSelection atomically sets the job's selected bid and closes
	// bidding, but only when no other bid has been selected yet (a repeat
	// claim with the same bid id succeeds, making retries idempotent).
	// Returns ErrSelectionConflict when a different bid already won.
	ClaimBidSelection(ctx context.Context, jobID, bidID string) (model.Job, error)
	ListOpenJobs(ctx context.Context) ([]model.Job, error)
	ListJobsSince(ctx context.Context, since time.Time) ([]model.Job, error)
}

type BidStore interface {
	// UpsertBid writes the bid keyed on (job_id, vendor_phone): a repeat
	// submission from the same vendor replaces the prior offer in place.
	UpsertBid(ctx context.Context, bid model.Bid) (model.Bid, error)
	GetBid(ctx context.Context, id string) (model.Bid, error)
	ListBidsByJob(ctx context.Context, jobID string) ([]model.Bid, error)
}

type VendorStore interface {
	PutVendor(ctx context.Context, vendor model.Vendor) error
	GetVendor(ctx context.Context, id string) (model.Vendor, error)
	ListVendors(ctx context.Context) ([]model.Vendor, error)
}

type ChargeStore interface {
	// UpsertChargeByJob writes the charge keyed on job_id so repeated
	// settlement attempts converge on a single row.
	UpsertChargeByJob(ctx context.Context, charge model.CommissionCharge) (model.CommissionCharge, error)
	GetChargeByJob(ctx context.Context, jobID string) (model.CommissionCharge, error)
}

type OutboxStore interface {
	AppendOutbox(ctx context.Context, entry model.OutboxEntry) error
	ListOutbox(ctx context.Context, limit int) ([]model.OutboxEntry, error)
}

// Store is the full persistence boundary of the dispatch engine.
type Store interface {
	JobStore
	BidStore
	VendorStore
	ChargeStore
	OutboxStore
}
