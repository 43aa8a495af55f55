// Package jobs owns job intake and dispatcher actions: creating jobs,
// status/vendor/priority changes, escalation, and cancellation.
package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/torqueops/dispatch/internal/commission"
	"github.com/torqueops/dispatch/internal/dispatch"
	"github.com/torqueops/dispatch/internal/lifecycle"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/notify"
	"github.com/torqueops/dispatch/internal/store"
)

var ErrValidation = errors.New("invalid job request")

type Service struct {
	store         store.Store
	board         *dispatch.Board
	notifier      *notify.Notifier
	portalBaseURL string
	now           func() time.Time
}

func New(st store.Store, board *dispatch.Board, notifier *notify.Notifier, portalBaseURL string) *Service {
	return &Service{
		store:         st,
		board:         board,
		notifier:      notifier,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		now:           time.Now,
	}
}

type CreateRequest struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	ServiceType   string          `json:"service_type"`
	Urgency       model.Urgency   `json:"urgency"`
	BidMode       model.BidMode   `json:"bid_mode"`
	QuotedPrice   float64         `json:"quoted_price"`
	Pickup        *model.GeoPoint `json:"pickup"`
	Dropoff       *model.GeoPoint `json:"dropoff"`
}

// Create opens a job for bidding: it mints the job id and both access
// tokens, then pings the top-ranked nearby vendors. The pings are
// best-effort and happen only after the job document is persisted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Job, error) {
	if req.CustomerID == "" {
		return model.Job{}, fmt.Errorf("%w: customer_id is required", ErrValidation)
	}
	if req.QuotedPrice < 0 {
		return model.Job{}, fmt.Errorf("%w: quoted_price must not be negative", ErrValidation)
	}

	urgency := req.Urgency
	if urgency == "" {
		urgency = model.UrgencyStandard
	}
	switch urgency {
	case model.UrgencyEmergency, model.UrgencyUrgent, model.UrgencyStandard:
	default:
		return model.Job{}, fmt.Errorf("%w: unknown urgency %q", ErrValidation, urgency)
	}

	mode := req.BidMode
	if mode == "" {
		mode = model.BidModeOpen
	}
	switch mode {
	case model.BidModeOpen, model.BidModeFixed:
	default:
		return model.Job{}, fmt.Errorf("%w: unknown bid_mode %q", ErrValidation, mode)
	}

	now := s.now().UTC()
	job := model.Job{
		ID:              generateID("job"),
		CustomerID:      req.CustomerID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		ServiceType:     req.ServiceType,
		Status:          model.JobUnassigned,
		Urgency:         urgency,
		BidMode:         mode,
		BiddingOpen:     true,
		QuotedPrice:     commission.Round2(req.QuotedPrice),
		ExpectedRevenue: commission.Round2(req.QuotedPrice),
		CustomerToken:   generateToken(),
		VendorToken:     generateToken(),
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		CreatedAt:       now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}

	slog.InfoContext(ctx, "job_created",
		"job_id", job.ID, "urgency", job.Urgency, "bid_mode", job.BidMode, "quoted_price", job.QuotedPrice)

	s.pingCandidates(ctx, job)
	return job, nil
}

// pingCandidates pushes a bid link to the best-ranked vendors for a fresh
// unassigned job.
func (s *Service) pingCandidates(ctx context.Context, job model.Job) {
	if job.Pickup == nil {
		return
	}
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		slog.WarnContext(ctx, "vendor lookup for dispatch pings failed", "job_id", job.ID, "error", err)
		return
	}

	open, err := s.store.ListOpenJobs(ctx)
	if err != nil {
		slog.WarnContext(ctx, "backlog lookup for dispatch pings failed", "job_id", job.ID, "error", err)
		return
	}
	backlog := make(map[string]int)
	for _, j := range open {
		if j.VendorID != "" {
			backlog[j.VendorID]++
		}
	}

	bidURL := fmt.Sprintf("%s/bid/%s", s.portalBaseURL, job.VendorToken)
	for _, candidate := range s.board.RankVendors(job, vendors, backlog) {
		vendor, err := s.store.GetVendor(ctx, candidate.VendorID)
		if err != nil {
			continue
		}
		s.notifier.DispatchPing(ctx, vendor, job, bidURL)
	}
}

func (s *Service) Get(ctx context.Context, id string) (model.Job, error) {
	return s.store.GetJob(ctx, id)
}

type PatchRequest struct {
	Status   *model.JobStatus `json:"status"`
	VendorID *string          `json:"vendor_id"`
	Urgency  *model.Urgency   `json:"urgency"`
	Escalate *bool            `json:"escalate"`
	Cancel   *bool            `json:"cancel"`
	Rating   *float64         `json:"rating"`
}

// Patch applies dispatcher corrections: a status move through the
// lifecycle graph, a direct vendor assignment, a priority change, or
// escalation/cancellation flags.
func (s *Service) Patch(ctx context.Context, id string, req PatchRequest) (model.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	now := s.now().UTC()

	if req.VendorID != nil {
		if err := s.assignVendor(ctx, &job, *req.VendorID, now); err != nil {
			return model.Job{}, err
		}
	}

	if req.Status != nil {
		if err := lifecycle.Apply(&job, *req.Status, now); err != nil {
			return model.Job{}, err
		}
	}

	if req.Urgency != nil {
		switch *req.Urgency {
		case model.UrgencyEmergency, model.UrgencyUrgent, model.UrgencyStandard:
			job.Urgency = *req.Urgency
		default:
			return model.Job{}, fmt.Errorf("%w: unknown urgency %q", ErrValidation, *req.Urgency)
		}
	}

	if req.Escalate != nil && *req.Escalate && !job.Escalated {
		job.Escalated = true
		if job.EscalatedAt == nil {
			t := now
			job.EscalatedAt = &t
		}
	}

	if req.Cancel != nil && *req.Cancel && !job.Cancelled {
		job.Cancelled = true
		t := now
		job.CancelledAt = &t
		job.BiddingOpen = false
	}

	if req.Rating != nil {
		if *req.Rating < 0 || *req.Rating > 5 {
			return model.Job{}, fmt.Errorf("%w: rating must be between 0 and 5", ErrValidation)
		}
		job.Rating = req.Rating
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("persist job: %w", err)
	}
	return job, nil
}

// assignVendor is the dispatcher's direct-assignment path around the
// bidding flow.
func (s *Service) assignVendor(ctx context.Context, job *model.Job, vendorID string, now time.Time) error {
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	if err := lifecycle.Apply(job, model.JobAssigned, now); err != nil {
		return err
	}
	job.VendorID = vendor.ID
	job.VendorName = vendor.Name
	job.VendorPhone = vendor.Phone
	job.BiddingOpen = false
	if job.FinalPrice == 0 {
		job.FinalPrice = job.QuotedPrice
	}
	return nil
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}

func generateToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "tok_" + hex.EncodeToString(b[:])
}
