package domain

import (
	"time"

	pricing "invoicing-cloud/internal/pricing/domain"
)

// BucketStatus is the lifecycle state of an aggregation bucket.
type BucketStatus string

const (
	// StatusAccumulating accepts line appends.
	StatusAccumulating BucketStatus = "accumulating"
	// StatusFinalized means the terminal line arrived and an invoice was
	// produced; further appends are rejected.
	StatusFinalized BucketStatus = "finalized"
	// StatusExpired means the bucket aged out before its terminal line.
	StatusExpired BucketStatus = "expired"
)

// Bucket accumulates priced lines for one carrier file until the terminal
// line finalizes it. Buckets are not safe for concurrent use; the store
// serializes access per correlation id.
type Bucket struct {
	correlationID string
	status        BucketStatus
	lines         []pricing.PricedLine
	createdAt     time.Time
	closedAt      time.Time
}

// NewBucket opens an accumulating bucket for a correlation id.
func NewBucket(correlationID string, createdAt time.Time) (*Bucket, error) {
	if correlationID == "" {
		return nil, ErrEmptyCorrelationID
	}
	return &Bucket{
		correlationID: correlationID,
		status:        StatusAccumulating,
		createdAt:     createdAt,
	}, nil
}

// Append adds a priced line to an accumulating bucket.
func (b *Bucket) Append(line pricing.PricedLine) error {
	switch b.status {
	case StatusFinalized:
		return ErrBucketFinalized
	case StatusExpired:
		return ErrBucketExpired
	}
	b.lines = append(b.lines, line)
	return nil
}

// Finalize transitions the bucket to finalized. Exactly one caller wins;
// later calls see ErrBucketFinalized.
func (b *Bucket) Finalize(at time.Time) error {
	switch b.status {
	case StatusFinalized:
		return ErrBucketFinalized
	case StatusExpired:
		return ErrBucketExpired
	}
	b.status = StatusFinalized
	b.closedAt = at
	return nil
}

// MarkExpired transitions an accumulating bucket to expired.
func (b *Bucket) MarkExpired(at time.Time) error {
	switch b.status {
	case StatusFinalized:
		return ErrBucketFinalized
	case StatusExpired:
		return ErrBucketExpired
	}
	b.status = StatusExpired
	b.closedAt = at
	return nil
}

// CorrelationID returns the batch key.
func (b *Bucket) CorrelationID() string { return b.correlationID }

// Status returns the lifecycle state.
func (b *Bucket) Status() BucketStatus { return b.status }

// CreatedAt returns when the first line opened the bucket.
func (b *Bucket) CreatedAt() time.Time { return b.createdAt }

// ClosedAt returns when the bucket finalized or expired.
func (b *Bucket) ClosedAt() time.Time { return b.closedAt }

// LineCount returns the number of accumulated lines.
func (b *Bucket) LineCount() int { return len(b.lines) }

// Lines returns a copy of the accumulated lines.
func (b *Bucket) Lines() []pricing.PricedLine {
	out := make([]pricing.PricedLine, len(b.lines))
	copy(out, b.lines)
	return out
}
