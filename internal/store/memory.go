package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/torqueops/dispatch/internal/model"
)

// MemoryStore is the in-process twin of the Mongo store, used in tests and
// when no MONGO_URI is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]model.Job
	bids    map[string]model.Bid
	vendors map[string]model.Vendor
	charges map[string]model.CommissionCharge // keyed by job id
	outbox  []model.OutboxEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]model.Job),
		bids:    make(map[string]model.Bid),
		vendors: make(map[string]model.Vendor),
		charges: make(map[string]model.CommissionCharge),
	}
}

// Jobs

func (s *MemoryStore) CreateJob(ctx context.Context, job model.Job) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) GetJobByVendorToken(ctx context.Context, token string) (model.Job, error) {
	return s.findJob(ctx, func(j model.Job) bool { return token != "" && j.VendorToken == token })
}

func (s *MemoryStore) GetJobByCustomerToken(ctx context.Context, token string) (model.Job, error) {
	return s.findJob(ctx, func(j model.Job) bool { return token != "" && j.CustomerToken == token })
}

func (s *MemoryStore) findJob(ctx context.Context, match func(model.Job) bool) (model.Job, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if match(job) {
			return job, nil
		}
	}
	return model.Job{}, ErrNotFound
}

func (s *MemoryStore) UpdateJob(ctx context.Context, job model.Job) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) ClaimBidSelection(ctx context.Context, jobID, bidID string) (model.Job, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	if job.SelectedBidID != "" && job.SelectedBidID != bidID {
		return model.Job{}, ErrSelectionConflict
	}
	job.SelectedBidID = bidID
	job.BiddingOpen = false
	s.jobs[jobID] = job
	return job, nil
}

func (s *MemoryStore) ListOpenJobs(ctx context.Context) ([]model.Job, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Job
	for _, job := range s.jobs {
		if job.Open() {
			out = append(out, job)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListJobsSince(ctx context.Context, since time.Time) ([]model.Job, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Job
	for _, job := range s.jobs {
		if !job.CreatedAt.Before(since) {
			out = append(out, job)
		}
	}
	sortJobs(out)
	return out, nil
}

func sortJobs(jobs []model.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
}

// Bids

func (s *MemoryStore) UpsertBid(ctx context.Context, bid model.Bid) (model.Bid, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.bids {
		if existing.JobID == bid.JobID && existing.VendorPhone == bid.VendorPhone {
			bid.ID = id
			bid.CreatedAt = existing.CreatedAt
			s.bids[id] = bid
			return bid, nil
		}
	}
	s.bids[bid.ID] = bid
	return bid, nil
}

func (s *MemoryStore) GetBid(ctx context.Context, id string) (model.Bid, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	bid, ok := s.bids[id]
	if !ok {
		return model.Bid{}, ErrNotFound
	}
	return bid, nil
}

func (s *MemoryStore) ListBidsByJob(ctx context.Context, jobID string) ([]model.Bid, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Bid
	for _, bid := range s.bids {
		if bid.JobID == jobID {
			out = append(out, bid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Vendors

func (s *MemoryStore) PutVendor(ctx context.Context, vendor model.Vendor) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[vendor.ID] = vendor
	return nil
}

func (s *MemoryStore) GetVendor(ctx context.Context, id string) (model.Vendor, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	vendor, ok := s.vendors[id]
	if !ok {
		return model.Vendor{}, ErrNotFound
	}
	return vendor, nil
}

func (s *MemoryStore) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vendor, 0, len(s.vendors))
	for _, vendor := range s.vendors {
		out = append(out, vendor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Charges

func (s *MemoryStore) UpsertChargeByJob(ctx context.Context, charge model.CommissionCharge) (model.CommissionCharge, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.charges[charge.JobID]; ok {
		charge.ID = existing.ID
		charge.RequestedAt = existing.RequestedAt
	}
	s.charges[charge.JobID] = charge
	return charge, nil
}

func (s *MemoryStore) GetChargeByJob(ctx context.Context, jobID string) (model.CommissionCharge, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	charge, ok := s.charges[jobID]
	if !ok {
		return model.CommissionCharge{}, ErrNotFound
	}
	return charge, nil
}

// Outbox

func (s *MemoryStore) AppendOutbox(ctx context.Context, entry model.OutboxEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *MemoryStore) ListOutbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutboxEntry, len(s.outbox))
	copy(out, s.outbox)
	// Newest first, like the Mongo listing.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
