// Package lifecycle owns the canonical job status graph and its timestamp
// side effects. Every other component goes through Apply to move a job.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/torqueops/dispatch/internal/model"
)

// TransitionError names a disallowed edge in the status graph.
type TransitionError struct {
	From model.JobStatus
	To   model.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// forward lists the allowed forward edges per state.
var forward = map[model.JobStatus][]model.JobStatus{
	model.JobUnassigned: {model.JobAssigned},
	model.JobAssigned:   {model.JobOnTheWay, model.JobArrived, model.JobCompleted, model.JobUnassigned},
	model.JobOnTheWay:   {model.JobArrived, model.JobCompleted},
	model.JobArrived:    {model.JobCompleted},
	model.JobCompleted:  {},
}

// previous maps each state to the one immediately preceding it. A rollback
// to that state is always permitted on top of the forward set, so a
// dispatcher can correct a fat-fingered advance.
var previous = map[model.JobStatus]model.JobStatus{
	model.JobAssigned:  model.JobUnassigned,
	model.JobOnTheWay:  model.JobAssigned,
	model.JobArrived:   model.JobOnTheWay,
	model.JobCompleted: model.JobArrived,
}

// Valid reports whether s is a known job status.
func Valid(s model.JobStatus) bool {
	_, ok := forward[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed edge. Same-state
// transitions are allowed and treated as no-ops by Apply.
func CanTransition(from, to model.JobStatus) bool {
	if from == to {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	if prev, ok := previous[from]; ok && prev == to {
		return true
	}
	return false
}

// Apply moves the job to next, stamping the entry timestamp for the new
// state. All stamps are set-once so historical SLA measurement survives
// rollbacks and retries. Entering Unassigned clears the vendor assignment
// and reopens bidding. Returns a *TransitionError on a disallowed edge,
// leaving the job untouched.
func Apply(job *model.Job, next model.JobStatus, now time.Time) error {
	if !Valid(next) {
		return &TransitionError{From: job.Status, To: next}
	}
	if job.Status == next {
		return nil
	}
	if !CanTransition(job.Status, next) {
		return &TransitionError{From: job.Status, To: next}
	}

	job.Status = next
	switch next {
	case model.JobUnassigned:
		job.VendorID = ""
		job.VendorName = ""
		job.VendorPhone = ""
		job.SelectedBidID = ""
		job.BiddingOpen = true
	case model.JobAssigned:
		stampOnce(&job.AssignedAt, now)
	case model.JobOnTheWay:
		stampOnce(&job.OnTheWayAt, now)
	case model.JobArrived:
		stampOnce(&job.ArrivedAt, now)
	case model.JobCompleted:
		stampOnce(&job.CompletedAt, now)
	}
	return nil
}

func stampOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}
