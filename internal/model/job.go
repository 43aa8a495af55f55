package model

import "time"

type JobStatus string

const (
	JobUnassigned JobStatus = "unassigned"
	JobAssigned   JobStatus = "assigned"
	JobOnTheWay   JobStatus = "on_the_way"
	JobArrived    JobStatus = "arrived"
	JobCompleted  JobStatus = "completed"
)

type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyStandard  Urgency = "standard"
)

type BidMode string

const (
	BidModeOpen  BidMode = "open"
	BidModeFixed BidMode = "fixed"
)

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionCharged CommissionStatus = "charged"
	CommissionFailed  CommissionStatus = "failed"
	CommissionSkipped CommissionStatus = "skipped"
)

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// ReportedPayment is what the vendor (or dispatcher on their behalf)
// reported collecting for a completed job.
type ReportedPayment struct {
	Amount     float64   `json:"amount" bson:"amount"`
	Method     string    `json:"method,omitempty" bson:"method,omitempty"`
	Note       string    `json:"note,omitempty" bson:"note,omitempty"`
	Actor      string    `json:"actor,omitempty" bson:"actor,omitempty"`
	ReportedAt time.Time `json:"reported_at" bson:"reported_at"`
}

// Commission is the job-side view of the platform commission. The
// authoritative settlement record is the CommissionCharge row; this block
// mirrors its outcome onto the job document.
type Commission struct {
	Rate          float64          `json:"rate" bson:"rate"`
	Amount        float64          `json:"amount" bson:"amount"`
	Status        CommissionStatus `json:"status" bson:"status"`
	ChargedAt     *time.Time       `json:"charged_at,omitempty" bson:"charged_at,omitempty"`
	ChargeID      string           `json:"charge_id,omitempty" bson:"charge_id,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
}

type JobFlags struct {
	UnderReport       bool   `json:"under_report" bson:"under_report"`
	UnderReportReason string `json:"under_report_reason,omitempty" bson:"under_report_reason,omitempty"`
}

type Job struct {
	ID string `json:"job_id" bson:"_id"`

	CustomerID    string `json:"customer_id" bson:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty" bson:"customer_phone,omitempty"`

	VendorID    string `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	VendorName  string `json:"vendor_name,omitempty" bson:"vendor_name,omitempty"`
	VendorPhone string `json:"vendor_phone,omitempty" bson:"vendor_phone,omitempty"`

	ServiceType string    `json:"service_type,omitempty" bson:"service_type,omitempty"`
	Status      JobStatus `json:"status" bson:"status"`
	Urgency     Urgency   `json:"urgency" bson:"urgency"`

	BidMode       BidMode `json:"bid_mode" bson:"bid_mode"`
	BiddingOpen   bool    `json:"bidding_open" bson:"bidding_open"`
	SelectedBidID string  `json:"selected_bid_id,omitempty" bson:"selected_bid_id,omitempty"`

	QuotedPrice     float64 `json:"quoted_price" bson:"quoted_price"`
	FinalPrice      float64 `json:"final_price" bson:"final_price"`
	ExpectedRevenue float64 `json:"expected_revenue" bson:"expected_revenue"`

	ReportedPayment *ReportedPayment `json:"reported_payment,omitempty" bson:"reported_payment,omitempty"`
	Commission      *Commission      `json:"commission,omitempty" bson:"commission,omitempty"`
	Flags           JobFlags         `json:"flags" bson:"flags"`

	// Opaque access tokens gating the public bidding endpoints. Both are
	// minted at job intake so vendors can bid before any selection.
	CustomerToken string `json:"-" bson:"customer_token,omitempty"`
	VendorToken   string `json:"-" bson:"vendor_token,omitempty"`

	Pickup  *GeoPoint `json:"pickup,omitempty" bson:"pickup,omitempty"`
	Dropoff *GeoPoint `json:"dropoff,omitempty" bson:"dropoff,omitempty"`

	Rating *float64 `json:"rating,omitempty" bson:"rating,omitempty"`

	Escalated bool `json:"escalated" bson:"escalated"`
	Cancelled bool `json:"cancelled" bson:"cancelled"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty" bson:"assigned_at,omitempty"`
	OnTheWayAt  *time.Time `json:"on_the_way_at,omitempty" bson:"on_the_way_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty" bson:"arrived_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty" bson:"escalated_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

// Open reports whether the job still counts against SLA tracking.
func (j Job) Open() bool {
	return j.Status != JobCompleted && !j.Cancelled
}
