package model

import "time"

type OutboxStatus string

const (
	OutboxQueued OutboxStatus = "queued"
	OutboxSent   OutboxStatus = "sent"
	OutboxFailed OutboxStatus = "failed"
)

// OutboxEntry is a durable record of a notification that could not be
// delivered synchronously.
type OutboxEntry struct {
	ID        string       `json:"outbox_id" bson:"_id"`
	Kind      string       `json:"kind" bson:"kind"`
	Recipient string       `json:"recipient" bson:"recipient"`
	Body      string       `json:"body" bson:"body"`
	JobID     string       `json:"job_id,omitempty" bson:"job_id,omitempty"`
	Status    OutboxStatus `json:"status" bson:"status"`
	Error     string       `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
}
