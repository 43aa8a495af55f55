package model

import "time"

// Bid is a vendor's offer on a job. At most one bid exists per
// (job_id, vendor_phone); re-submission updates the existing record.
type Bid struct {
	ID          string    `json:"bid_id" bson:"_id"`
	JobID       string    `json:"job_id" bson:"job_id"`
	VendorID    string    `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	VendorName  string    `json:"vendor_name" bson:"vendor_name"`
	VendorPhone string    `json:"vendor_phone" bson:"vendor_phone"`
	ETAMinutes  int       `json:"eta_minutes" bson:"eta_minutes"`
	Price       float64   `json:"price" bson:"price"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// BidView is the customer-facing projection of a bid. It deliberately
// carries nothing about the vendor beyond name and phone.
type BidView struct {
	BidID       string    `json:"bid_id"`
	VendorName  string    `json:"vendor_name"`
	VendorPhone string    `json:"vendor_phone"`
	ETAMinutes  int       `json:"eta_minutes"`
	Price       float64   `json:"price"`
	ReceivedAt  time.Time `json:"received_at"`
}

type SubmitBidRequest struct {
	VendorName  string  `json:"vendor_name"`
	VendorPhone string  `json:"vendor_phone"`
	ETAMinutes  int     `json:"eta_minutes"`
	Price       float64 `json:"price"`
}

// JobPreview is what a vendor sees before bidding.
type JobPreview struct {
	JobID       string    `json:"job_id"`
	ServiceType string    `json:"service_type,omitempty"`
	Urgency     Urgency   `json:"urgency"`
	BidMode     BidMode   `json:"bid_mode"`
	QuotedPrice float64   `json:"quoted_price"`
	Pickup      *GeoPoint `json:"pickup,omitempty"`
	Dropoff     *GeoPoint `json:"dropoff,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
