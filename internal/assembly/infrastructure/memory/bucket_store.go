package memory

import (
	"context"
	"sync"
	"time"

	assembly "invoicing-cloud/internal/assembly/domain"
)

type entry struct {
	mu     sync.Mutex
	bucket *assembly.Bucket
}

// BucketStore keeps aggregation buckets in process memory with a mutex per
// correlation id, so appends for different files never contend and appends
// for the same file are serialized.
type BucketStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewBucketStore constructs an empty store.
func NewBucketStore() *BucketStore {
	return &BucketStore{entries: make(map[string]*entry)}
}

// Update runs fn under the key lock, creating the bucket with createdAt when
// it does not exist yet.
func (s *BucketStore) Update(ctx context.Context, correlationID string, createdAt time.Time, fn func(*assembly.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if correlationID == "" {
		return assembly.ErrEmptyCorrelationID
	}

	s.mu.Lock()
	ent, ok := s.entries[correlationID]
	if !ok {
		ent = &entry{}
		s.entries[correlationID] = ent
	}
	s.mu.Unlock()

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.bucket == nil {
		bucket, err := assembly.NewBucket(correlationID, createdAt)
		if err != nil {
			return err
		}
		ent.bucket = bucket
	}
	return fn(ent.bucket)
}

// Expire marks accumulating buckets opened before cutoff as expired and
// returns them. Expired and finalized buckets stay behind as tombstones until
// their close time itself passes cutoff, so redelivered lines keep hitting
// the closed bucket instead of opening a fresh one.
func (s *BucketStore) Expire(ctx context.Context, cutoff time.Time) ([]*assembly.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	candidates := make(map[string]*entry, len(s.entries))
	for id, ent := range s.entries {
		candidates[id] = ent
	}
	s.mu.Unlock()

	var expired []*assembly.Bucket
	for id, ent := range candidates {
		ent.mu.Lock()
		bucket := ent.bucket
		switch {
		case bucket == nil:
		case bucket.Status() == assembly.StatusAccumulating:
			if bucket.CreatedAt().Before(cutoff) {
				if err := bucket.MarkExpired(cutoff); err == nil {
					expired = append(expired, bucket)
				}
			}
		default:
			if bucket.ClosedAt().Before(cutoff) {
				s.mu.Lock()
				delete(s.entries, id)
				s.mu.Unlock()
			}
		}
		ent.mu.Unlock()
	}
	return expired, nil
}

// Count returns the number of live buckets, tombstones included.
func (s *BucketStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
