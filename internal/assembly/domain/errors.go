package domain

import "errors"

var (
	// ErrEmptyCorrelationID rejects bucket operations without a batch key.
	ErrEmptyCorrelationID = errors.New("empty correlation id")

	// ErrBucketFinalized is returned when a line arrives after the bucket
	// already produced an invoice.
	ErrBucketFinalized = errors.New("bucket already finalized")

	// ErrBucketExpired is returned when a line arrives after the bucket
	// was expired by the sweeper.
	ErrBucketExpired = errors.New("bucket expired")

	// ErrBucketNotFinalized rejects invoice assembly from an open bucket.
	ErrBucketNotFinalized = errors.New("bucket not finalized")

	// ErrBucketNotFound is returned by stores for unknown correlation ids.
	ErrBucketNotFound = errors.New("bucket not found")
)
