// Package dispatch keeps dispatchers aware of SLA risk: it computes the
// escalation queue, ranks candidate vendors for unassigned jobs, and
// aggregates vendor scorecards. It only reads job/vendor state and never
// touches the write paths.
package dispatch

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/torqueops/dispatch/internal/commission"
	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/store"
)

type Board struct {
	store store.Store
	sla   config.SLAConfig
	cfg   config.DispatchConfig
	now   func() time.Time
}

func NewBoard(st store.Store, sla config.SLAConfig, cfg config.DispatchConfig) *Board {
	return &Board{store: st, sla: sla, cfg: cfg, now: time.Now}
}

// SLARisk is the per-job SLA verdict.
type SLARisk struct {
	JobID            string          `json:"job_id"`
	Status           model.JobStatus `json:"status"`
	Urgency          model.Urgency   `json:"urgency"`
	BudgetMinutes    int             `json:"budget_minutes"`
	OpenMinutes      float64         `json:"open_minutes"`
	MinutesRemaining float64         `json:"minutes_remaining"`
	AtRisk           bool            `json:"at_risk"`
	Severe           bool            `json:"severe"`
	Escalated        bool            `json:"escalated"`
}

// BudgetMinutes returns the SLA budget for an urgency tier. Unknown tiers
// fall back to standard.
func (b *Board) BudgetMinutes(urgency model.Urgency) int {
	switch urgency {
	case model.UrgencyEmergency:
		return b.sla.EmergencyMinutes
	case model.UrgencyUrgent:
		return b.sla.UrgentMinutes
	default:
		return b.sla.StandardMinutes
	}
}

// Risk evaluates one job against its SLA budget at the given instant.
func (b *Board) Risk(job model.Job, now time.Time) SLARisk {
	budget := b.BudgetMinutes(job.Urgency)
	openMin := now.Sub(job.CreatedAt).Minutes()
	remaining := float64(budget) - openMin

	return SLARisk{
		JobID:            job.ID,
		Status:           job.Status,
		Urgency:          job.Urgency,
		BudgetMinutes:    budget,
		OpenMinutes:      openMin,
		MinutesRemaining: remaining,
		AtRisk:           remaining <= 0,
		Severe:           remaining <= -float64(b.sla.SevereOverdueMinutes),
		Escalated:        job.Escalated,
	}
}

// EscalationQueue returns the at-risk-or-escalated jobs, most overdue
// first.
func (b *Board) EscalationQueue(jobs []model.Job, now time.Time) []SLARisk {
	var out []SLARisk
	for _, job := range jobs {
		if !job.Open() {
			continue
		}
		risk := b.Risk(job, now)
		if risk.AtRisk || risk.Escalated {
			out = append(out, risk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MinutesRemaining < out[j].MinutesRemaining
	})
	return out
}

// VendorSuggestion is a ranked dispatch candidate for an unassigned job.
type VendorSuggestion struct {
	VendorID      string  `json:"vendor_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	DistanceKm    float64 `json:"distance_km"`
	Backlog       int     `json:"backlog"`
	UpdatesPaused bool    `json:"updates_paused"`
	Score         float64 `json:"score"`
}

// RankVendors scores active vendors against an unassigned job's pickup
// point: distance in km, plus a weighted penalty per active job in the
// vendor's backlog, plus a flat penalty when the vendor has paused
// updates. Vendors without resolvable coordinates are excluded. The
// lowest-scoring candidates win, capped at the configured limit.
func (b *Board) RankVendors(job model.Job, vendors []model.Vendor, backlog map[string]int) []VendorSuggestion {
	if job.Pickup == nil {
		return nil
	}

	var out []VendorSuggestion
	for _, v := range vendors {
		if !v.Active || v.Location == nil {
			continue
		}
		dist := haversineKm(*job.Pickup, *v.Location)
		score := dist + b.cfg.BacklogWeight*float64(backlog[v.ID])
		if v.UpdatesPaused {
			score += b.cfg.PausedPenalty
		}
		out = append(out, VendorSuggestion{
			VendorID:      v.ID,
			Name:          v.Name,
			Phone:         v.Phone,
			DistanceKm:    math.Round(dist*100) / 100,
			Backlog:       backlog[v.ID],
			UpdatesPaused: v.UpdatesPaused,
			Score:         math.Round(score*100) / 100,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if b.cfg.SuggestionLimit > 0 && len(out) > b.cfg.SuggestionLimit {
		out = out[:b.cfg.SuggestionLimit]
	}
	return out
}

// Scorecard aggregates a vendor's trailing-window performance.
type Scorecard struct {
	VendorID           string  `json:"vendor_id"`
	Name               string  `json:"name"`
	Assigned           int     `json:"assigned"`
	Completed          int     `json:"completed"`
	Cancelled          int     `json:"cancelled"`
	AvgArrivalMinutes  float64 `json:"avg_arrival_minutes"`
	AvgCompleteMinutes float64 `json:"avg_complete_minutes"`
	SLAHitRate         float64 `json:"sla_hit_rate"`
	AvgRating          float64 `json:"avg_rating"`
	GrossCollected     float64 `json:"gross_collected"`
	CommissionTotal    float64 `json:"commission_total"`
}

// Scorecards builds per-vendor aggregates over the jobs in the trailing
// window.
func (b *Board) Scorecards(jobs []model.Job, vendors []model.Vendor) []Scorecard {
	type acc struct {
		card          Scorecard
		arrivalSum    float64
		arrivalCount  int
		completeSum   float64
		completeCount int
		slaHits       int
		slaMeasured   int
		ratingSum     float64
		ratingCount   int
	}

	byVendor := make(map[string]*acc)
	names := make(map[string]string, len(vendors))
	for _, v := range vendors {
		names[v.ID] = v.Name
	}

	for _, job := range jobs {
		if job.VendorID == "" {
			continue
		}
		a := byVendor[job.VendorID]
		if a == nil {
			a = &acc{card: Scorecard{VendorID: job.VendorID, Name: names[job.VendorID]}}
			byVendor[job.VendorID] = a
		}

		a.card.Assigned++
		if job.Cancelled {
			a.card.Cancelled++
			continue
		}
		if job.Status != model.JobCompleted {
			continue
		}
		a.card.Completed++

		if job.AssignedAt != nil && job.ArrivedAt != nil {
			arrival := job.ArrivedAt.Sub(*job.AssignedAt).Minutes()
			a.arrivalSum += arrival
			a.arrivalCount++
			a.slaMeasured++
			if arrival <= float64(b.BudgetMinutes(job.Urgency)) {
				a.slaHits++
			}
		}
		if job.AssignedAt != nil && job.CompletedAt != nil {
			a.completeSum += job.CompletedAt.Sub(*job.AssignedAt).Minutes()
			a.completeCount++
		}
		if job.Rating != nil {
			a.ratingSum += *job.Rating
			a.ratingCount++
		}
		if job.ReportedPayment != nil {
			a.card.GrossCollected += job.ReportedPayment.Amount
		}
		if job.Commission != nil && job.Commission.Status == model.CommissionCharged {
			a.card.CommissionTotal += job.Commission.Amount
		}
	}

	out := make([]Scorecard, 0, len(byVendor))
	for _, a := range byVendor {
		if a.arrivalCount > 0 {
			a.card.AvgArrivalMinutes = math.Round(a.arrivalSum/float64(a.arrivalCount)*10) / 10
		}
		if a.completeCount > 0 {
			a.card.AvgCompleteMinutes = math.Round(a.completeSum/float64(a.completeCount)*10) / 10
		}
		if a.slaMeasured > 0 {
			a.card.SLAHitRate = math.Round(float64(a.slaHits)/float64(a.slaMeasured)*100) / 100
		}
		if a.ratingCount > 0 {
			a.card.AvgRating = math.Round(a.ratingSum/float64(a.ratingCount)*10) / 10
		}
		a.card.GrossCollected = commission.Round2(a.card.GrossCollected)
		a.card.CommissionTotal = commission.Round2(a.card.CommissionTotal)
		out = append(out, a.card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out
}

// MissionControlView is the dispatcher's single-screen aggregate.
type MissionControlView struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Queue       []SLARisk                     `json:"queue"`
	Escalations []SLARisk                     `json:"escalations"`
	Suggestions map[string][]VendorSuggestion `json:"suggestions"`
	Scorecards  []Scorecard                   `json:"scorecards"`
}

// MissionControl assembles the dispatcher view: every open job's SLA
// state, the escalation queue, route suggestions for unassigned jobs with
// pickup coordinates, and trailing-window vendor scorecards.
func (b *Board) MissionControl(ctx context.Context) (MissionControlView, error) {
	now := b.now().UTC()

	open, err := b.store.ListOpenJobs(ctx)
	if err != nil {
		return MissionControlView{}, err
	}
	vendors, err := b.store.ListVendors(ctx)
	if err != nil {
		return MissionControlView{}, err
	}
	window, err := b.store.ListJobsSince(ctx, now.Add(-b.cfg.ScorecardWindow))
	if err != nil {
		return MissionControlView{}, err
	}

	backlog := make(map[string]int)
	queue := make([]SLARisk, 0, len(open))
	for _, job := range open {
		queue = append(queue, b.Risk(job, now))
		if job.VendorID != "" {
			backlog[job.VendorID]++
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		return queue[i].MinutesRemaining < queue[j].MinutesRemaining
	})

	suggestions := make(map[string][]VendorSuggestion)
	for _, job := range open {
		if job.Status != model.JobUnassigned || job.Pickup == nil {
			continue
		}
		if ranked := b.RankVendors(job, vendors, backlog); len(ranked) > 0 {
			suggestions[job.ID] = ranked
		}
	}

	return MissionControlView{
		GeneratedAt: now,
		Queue:       queue,
		Escalations: b.EscalationQueue(open, now),
		Suggestions: suggestions,
		Scorecards:  b.Scorecards(window, vendors),
	}, nil
}

const earthRadiusKm = 6371.0

// haversineKm is the straight-line distance between two coordinates.
func haversineKm(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
