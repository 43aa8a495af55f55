package model

import "time"

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

// CommissionCharge is the settlement record for a completed job. Exactly
// one row exists per job; repeated settlement attempts upsert it in place.
type CommissionCharge struct {
	ID               string       `json:"charge_id" bson:"_id"`
	JobID            string       `json:"job_id" bson:"job_id"`
	VendorID         string       `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	ReportedAmount   float64      `json:"reported_amount" bson:"reported_amount"`
	CommissionRate   float64      `json:"commission_rate" bson:"commission_rate"`
	CommissionAmount float64      `json:"commission_amount" bson:"commission_amount"`
	Status           ChargeStatus `json:"status" bson:"status"`
	Processor        string       `json:"processor,omitempty" bson:"processor,omitempty"`
	ProcessorRef     string       `json:"processor_ref,omitempty" bson:"processor_ref,omitempty"`
	FailureReason    string       `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	RequestedAt      time.Time    `json:"requested_at" bson:"requested_at"`
	ProcessedAt      *time.Time   `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}
