package events

import (
	"time"

	assembly "invoicing-cloud/internal/assembly/domain"
)

// InvoiceAssembled is emitted when a terminal line finalizes a bucket. It
// carries the full invoice so downstream renderers need no extra lookup.
type InvoiceAssembled struct {
	CorrelationID string           `json:"correlation_id"`
	Invoice       assembly.Invoice `json:"invoice"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// BucketExpired is emitted when a bucket ages out before its terminal line.
type BucketExpired struct {
	CorrelationID string    `json:"correlation_id"`
	LineCount     int       `json:"line_count"`
	CreatedAt     time.Time `json:"created_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}
