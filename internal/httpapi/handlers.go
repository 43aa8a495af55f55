package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/torqueops/dispatch/internal/bidding"
	"github.com/torqueops/dispatch/internal/dispatch"
	"github.com/torqueops/dispatch/internal/jobs"
	"github.com/torqueops/dispatch/internal/lifecycle"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/settlement"
	"github.com/torqueops/dispatch/internal/store"
)

type Handlers struct {
	jobs       *jobs.Service
	bidding    *bidding.Service
	settlement *settlement.Service
	board      *dispatch.Board
	store      store.Store
}

func NewHandlers(js *jobs.Service, bs *bidding.Service, ss *settlement.Service, board *dispatch.Board, st store.Store) *Handlers {
	return &Handlers{jobs: js, bidding: bs, settlement: ss, board: board, store: st}
}

// CreateJob opens a new job for bidding
// POST /jobs
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, jobEnvelope(job))
}

// GetJob returns a job by id
// GET /jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// PatchJob applies dispatcher corrections to a job
// PATCH /jobs/{id}
func (h *Handlers) PatchJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Patch(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// CompleteJob settles a job: completion, commission verdict, charge
// POST /jobs/{id}/complete
func (h *Handlers) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount     float64 `json:"amount"`
		Method     string  `json:"method"`
		Note       string  `json:"note"`
		Actor      string  `json:"actor"`
		AutoCharge *bool   `json:"auto_charge"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.settlement.CompleteJob(r.Context(), chi.URLParam(r, "id"), settlement.CompleteParams{
		Amount:     req.Amount,
		Method:     req.Method,
		Note:       req.Note,
		Actor:      req.Actor,
		AutoCharge: req.AutoCharge,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// RetryCharge re-runs only the charge step of settlement
// POST /jobs/{id}/retry-charge
func (h *Handlers) RetryCharge(w http.ResponseWriter, r *http.Request) {
	job, err := h.settlement.RetryCharge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// JobPreview is the vendor-facing view of a job open for bidding
// GET /bids/job/{vendorToken}
func (h *Handlers) JobPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.bidding.JobPreview(r.Context(), chi.URLParam(r, "vendorToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// SubmitBid records or replaces a vendor's offer
// POST /bids/{vendorToken}
func (h *Handlers) SubmitBid(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bid, err := h.bidding.SubmitBid(r.Context(), chi.URLParam(r, "vendorToken"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, bid)
}

// ListBids is the customer's read-only view of offers on their job
// GET /bids/list/{customerToken}
func (h *Handlers) ListBids(w http.ResponseWriter, r *http.Request) {
	views, err := h.bidding.ListBids(r.Context(), chi.URLParam(r, "customerToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// SelectBid locks a job to the winning bid's vendor
// POST /bids/{bidId}/select
func (h *Handlers) SelectBid(w http.ResponseWriter, r *http.Request) {
	result, err := h.bidding.SelectBid(r.Context(), chi.URLParam(r, "bidId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// MissionControl is the dispatcher's aggregate board
// GET /ops/mission-control
func (h *Handlers) MissionControl(w http.ResponseWriter, r *http.Request) {
	view, err := h.board.MissionControl(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// PutVendor upserts a vendor record
// PUT /internal/vendors/{id}
func (h *Handlers) PutVendor(w http.ResponseWriter, r *http.Request) {
	var vendor model.Vendor
	if err := json.NewDecoder(r.Body).Decode(&vendor); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	vendor.ID = chi.URLParam(r, "id")
	if vendor.ID == "" {
		http.Error(w, "vendor id is required", http.StatusBadRequest)
		return
	}

	if err := h.store.PutVendor(r.Context(), vendor); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, vendor)
}

// ListOutbox returns recent dead-lettered or queued notifications
// GET /internal/outbox?limit={n}
func (h *Handlers) ListOutbox(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.store.ListOutbox(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// jobEnvelope adds the tokens to a freshly created job. Tokens are
// excluded from the normal JSON shape, so intake is the one place the
// caller learns them.
func jobEnvelope(job model.Job) map[string]any {
	return map[string]any{
		"job":            job,
		"customer_token": job.CustomerToken,
		"vendor_token":   job.VendorToken,
	}
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as opaque 500s.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var transition *lifecycle.TransitionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrSelectionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &transition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bidding.ErrBiddingClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settlement.ErrNotSettleable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bidding.ErrInvalidBid),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, jobs.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
