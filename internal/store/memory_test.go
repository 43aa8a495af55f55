package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueops/dispatch/internal/model"
)

func TestClaimBidSelection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateJob(ctx, model.Job{ID: "job_1", Status: model.JobUnassigned, BiddingOpen: true}))

	job, err := s.ClaimBidSelection(ctx, "job_1", "bid_a")
	require.NoError(t, err)
	assert.Equal(t, "bid_a", job.SelectedBidID)
	assert.False(t, job.BiddingOpen)

	// Retrying with the same bid id is idempotent.
	job, err = s.ClaimBidSelection(ctx, "job_1", "bid_a")
	require.NoError(t, err)
	assert.Equal(t, "bid_a", job.SelectedBidID)

	// A different bid loses.
	_, err = s.ClaimBidSelection(ctx, "job_1", "bid_b")
	assert.ErrorIs(t, err, ErrSelectionConflict)

	job, err = s.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "bid_a", job.SelectedBidID)

	_, err = s.ClaimBidSelection(ctx, "job_missing", "bid_a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertBidKeyedOnJobAndPhone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := model.Bid{
		ID: "bid_1", JobID: "job_1", VendorPhone: "+15550001111",
		VendorName: "Ace Towing", ETAMinutes: 30, Price: 120,
		CreatedAt: created, UpdatedAt: created,
	}
	_, err := s.UpsertBid(ctx, first)
	require.NoError(t, err)

	second := first
	second.ID = "bid_2"
	second.ETAMinutes = 20
	second.Price = 110
	second.CreatedAt = created.Add(time.Hour)
	second.UpdatedAt = created.Add(time.Hour)

	out, err := s.UpsertBid(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "bid_1", out.ID, "re-submission keeps the original bid id")
	assert.Equal(t, created, out.CreatedAt)
	assert.Equal(t, 20, out.ETAMinutes)

	bids, err := s.ListBidsByJob(ctx, "job_1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, 110.0, bids[0].Price)

	// A different vendor on the same job creates a second record.
	other := first
	other.ID = "bid_3"
	other.VendorPhone = "+15550002222"
	_, err = s.UpsertBid(ctx, other)
	require.NoError(t, err)
	bids, _ = s.ListBidsByJob(ctx, "job_1")
	assert.Len(t, bids, 2)
}

func TestUpsertChargeByJobKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	requested := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := model.CommissionCharge{
		ID: "chg_1", JobID: "job_1", Status: model.ChargePending,
		CommissionAmount: 30, RequestedAt: requested,
	}
	_, err := s.UpsertChargeByJob(ctx, first)
	require.NoError(t, err)

	second := first
	second.ID = "chg_2"
	second.Status = model.ChargeSucceeded
	out, err := s.UpsertChargeByJob(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "chg_1", out.ID)
	assert.Equal(t, requested, out.RequestedAt)
	assert.Equal(t, model.ChargeSucceeded, out.Status)

	charge, err := s.GetChargeByJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "chg_1", charge.ID)
}

func TestListOpenJobsSkipsClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC()

	require.NoError(t, s.CreateJob(ctx, model.Job{ID: "job_open", Status: model.JobAssigned, CreatedAt: base}))
	require.NoError(t, s.CreateJob(ctx, model.Job{ID: "job_done", Status: model.JobCompleted, CreatedAt: base}))
	require.NoError(t, s.CreateJob(ctx, model.Job{ID: "job_cxl", Status: model.JobUnassigned, Cancelled: true, CreatedAt: base}))

	open, err := s.ListOpenJobs(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "job_open", open[0].ID)
}
