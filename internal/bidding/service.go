// Package bidding accepts vendor bids on open jobs and performs the
// selection that locks a job to exactly one vendor.
package bidding

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
	"github.com/torqueops/dispatch/internal/lifecycle"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/notify"
	"github.com/torqueops/dispatch/internal/store"
)

const (
	minETAMinutes = 1
	maxETAMinutes = 720
)

var (
	ErrBiddingClosed = errors.New("bidding is closed for this job")
	ErrInvalidBid    = errors.New("invalid bid")
)

type Service struct {
	store         store.Store
	notifier      *notify.Notifier
	portalBaseURL string
	now           func() time.Time
}

func New(st store.Store, notifier *notify.Notifier, portalBaseURL string) *Service {
	return &Service{
		store:         st,
		notifier:      notifier,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		now:           time.Now,
	}
}

// JobPreview returns the vendor-facing view of a job open for bidding.
// A closed or unknown job is indistinguishable to the caller: not found.
func (s *Service) JobPreview(ctx context.Context, vendorToken string) (model.JobPreview, error) {
	job, err := s.store.GetJobByVendorToken(ctx, vendorToken)
	if err != nil {
		return model.JobPreview{}, err
	}
	if !job.BiddingOpen {
		return model.JobPreview{}, store.ErrNotFound
	}
	return model.JobPreview{
		JobID:       job.ID,
		ServiceType: job.ServiceType,
		Urgency:     job.Urgency,
		BidMode:     job.BidMode,
		QuotedPrice: job.QuotedPrice,
		Pickup:      job.Pickup,
		Dropoff:     job.Dropoff,
		CreatedAt:   job.CreatedAt,
	}, nil
}

// SubmitBid records or updates a vendor's offer. ETA is clamped to
// [1, 720] minutes; in fixed mode the caller-supplied price is ignored in
// favor of the job's quote. One bid per (job, vendor phone): repeats
// replace the earlier offer.
func (s *Service) SubmitBid(ctx context.Context, vendorToken string, req model.SubmitBidRequest) (model.Bid, error) {
	job, err := s.store.GetJobByVendorToken(ctx, vendorToken)
	if err != nil {
		return model.Bid{}, err
	}
	if !job.BiddingOpen {
		return model.Bid{}, ErrBiddingClosed
	}

	phone := strings.TrimSpace(req.VendorPhone)
	if phone == "" {
		return model.Bid{}, fmt.Errorf("%w: vendor phone is required", ErrInvalidBid)
	}
	if req.ETAMinutes <= 0 {
		return model.Bid{}, fmt.Errorf("%w: eta_minutes must be positive", ErrInvalidBid)
	}
	eta := req.ETAMinutes
	if eta < minETAMinutes {
		eta = minETAMinutes
	}
	if eta > maxETAMinutes {
		eta = maxETAMinutes
	}

	price := req.Price
	if job.BidMode == model.BidModeFixed {
		price = job.QuotedPrice
	} else if price < 0 {
		return model.Bid{}, fmt.Errorf("%w: price must not be negative", ErrInvalidBid)
	}

	now := s.now().UTC()
	bid := model.Bid{
		ID:          generateID("bid"),
		JobID:       job.ID,
		VendorName:  strings.TrimSpace(req.VendorName),
		VendorPhone: phone,
		ETAMinutes:  eta,
		Price:       commission.Round2(price),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, err := s.store.UpsertBid(ctx, bid)
	if err != nil {
		return model.Bid{}, fmt.Errorf("save bid: %w", err)
	}

	slog.InfoContext(ctx, "bid_received",
		"job_id", job.ID, "bid_id", saved.ID, "eta_minutes", saved.ETAMinutes, "price", saved.Price)
	return saved, nil
}

// ListBids is the customer's read-only projection of offers on their job.
func (s *Service) ListBids(ctx context.Context, customerToken string) ([]model.BidView, error) {
	job, err := s.store.GetJobByCustomerToken(ctx, customerToken)
	if err != nil {
		return nil, err
	}

	bids, err := s.store.ListBidsByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	out := make([]model.BidView, 0, len(bids))
	for _, b := range bids {
		out = append(out, model.BidView{
			BidID:       b.ID,
			VendorName:  b.VendorName,
			VendorPhone: b.VendorPhone,
			ETAMinutes:  b.ETAMinutes,
			Price:       b.Price,
			ReceivedAt:  b.CreatedAt,
		})
	}
	return out, nil
}

// SelectionResult is returned to the customer after a winning selection.
type SelectionResult struct {
	Job             model.Job `json:"job"`
	Bid             model.Bid `json:"bid"`
	VendorPortalURL string    `json:"vendor_portal_url"`
	CustomerViewURL string    `json:"customer_view_url"`
}

// SelectBid accepts the referenced bid and locks the job to its vendor.
// The claim is a conditional write keyed on the job's current selected bid
// id, so two near-simultaneous selections cannot both win: the loser gets
// store.ErrSelectionConflict.
func (s *Service) SelectBid(ctx context.Context, bidID string) (SelectionResult, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return SelectionResult{}, err
	}

	// The transition must be checked before the claim: a claim on a job
	// that cannot move to Assigned would strand a selected_bid_id that no
	// completed selection backs, blocking every later selection.
	job, err := s.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return SelectionResult{}, err
	}
	if !lifecycle.CanTransition(job.Status, model.JobAssigned) {
		return SelectionResult{}, &lifecycle.TransitionError{From: job.Status, To: model.JobAssigned}
	}

	job, err = s.store.ClaimBidSelection(ctx, bid.JobID, bid.ID)
	if err != nil {
		return SelectionResult{}, err
	}

	now := s.now().UTC()
	if err := lifecycle.Apply(&job, model.JobAssigned, now); err != nil {
		return SelectionResult{}, err
	}

	job.VendorID = bid.VendorID
	job.VendorName = bid.VendorName
	job.VendorPhone = bid.VendorPhone
	if job.BidMode == model.BidModeFixed {
		job.FinalPrice = job.QuotedPrice
	} else {
		job.FinalPrice = bid.Price
	}
	if job.VendorToken == "" {
		job.VendorToken = generateToken()
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return SelectionResult{}, fmt.Errorf("persist selection: %w", err)
	}

	slog.InfoContext(ctx, "bid_selected",
		"job_id", job.ID, "bid_id", bid.ID, "vendor_phone", bid.VendorPhone, "final_price", job.FinalPrice)

	result := SelectionResult{
		Job:             job,
		Bid:             bid,
		VendorPortalURL: fmt.Sprintf("%s/vendor/%s", s.portalBaseURL, job.VendorToken),
		CustomerViewURL: fmt.Sprintf("%s/track/%s", s.portalBaseURL, job.CustomerToken),
	}

	// Notification strictly after the authoritative write.
	s.notifier.VendorSelected(ctx, job, result.VendorPortalURL)
	return result, nil
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}

// generateToken mints a long-lived opaque access token.
func generateToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "tok_" + hex.EncodeToString(b[:])
}
