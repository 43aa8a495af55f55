package model

import "time"

// BillingProfile links a vendor to its payment processor account.
type BillingProfile struct {
	ProcessorCustomerID  string `json:"processor_customer_id,omitempty" bson:"processor_customer_id,omitempty"`
	DefaultPaymentMethod string `json:"default_payment_method,omitempty" bson:"default_payment_method,omitempty"`
}

type Vendor struct {
	ID               string         `json:"vendor_id" bson:"_id"`
	Name             string         `json:"name" bson:"name"`
	Phone            string         `json:"phone" bson:"phone"`
	Location         *GeoPoint      `json:"location,omitempty" bson:"location,omitempty"`
	Active           bool           `json:"active" bson:"active"`
	UpdatesPaused    bool           `json:"updates_paused" bson:"updates_paused"`
	ServiceTags      []string       `json:"service_tags,omitempty" bson:"service_tags,omitempty"`
	HeavyDuty        bool           `json:"heavy_duty" bson:"heavy_duty"`
	Billing          BillingProfile `json:"billing" bson:"billing"`
	ComplianceStatus string         `json:"compliance_status,omitempty" bson:"compliance_status,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at" bson:"updated_at"`
}
