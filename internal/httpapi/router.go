// Package httpapi exposes the dispatch engine over HTTP: the token-gated
// public bidding surface, dispatcher job operations, the mission-control
// board, and a small internal admin surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/torqueops/dispatch/internal/bidding"
	"github.com/torqueops/dispatch/internal/dispatch"
	"github.com/torqueops/dispatch/internal/jobs"
	"github.com/torqueops/dispatch/internal/settlement"
	"github.com/torqueops/dispatch/internal/store"
)

func NewRouter(js *jobs.Service, bs *bidding.Service, ss *settlement.Service, board *dispatch.Board, st store.Store) http.Handler {
	h := NewHandlers(js, bs, ss, board, st)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Dispatcher job operations
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs/{id}", h.GetJob)
	r.Patch("/jobs/{id}", h.PatchJob)
	r.Post("/jobs/{id}/complete", h.CompleteJob)
	r.Post("/jobs/{id}/retry-charge", h.RetryCharge)

	// Token-gated public bidding surface
	r.Get("/bids/job/{vendorToken}", h.JobPreview)
	r.Post("/bids/{bidId}/select", h.SelectBid)
	r.Post("/bids/{vendorToken}", h.SubmitBid)
	r.Get("/bids/list/{customerToken}", h.ListBids)

	// Operations board
	r.Get("/ops/mission-control", h.MissionControl)

	// Internal admin surface
	r.Put("/internal/vendors/{id}", h.PutVendor)
	r.Get("/internal/outbox", h.ListOutbox)

	// Health
	r.Get("/health", h.Health)

	return r
}
