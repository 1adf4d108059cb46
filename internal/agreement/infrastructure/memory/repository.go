package memory

import (
	"context"
	"sync"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// Repository is an in-memory agreement store for tests and single-binary
// deployments without a database.
type Repository struct {
	mu                 sync.RWMutex
	versions           map[string][]agreement.Agreement
	standardCustomerID string
}

// Option configures the repository.
type Option func(*Repository)

// WithStandardCustomerID overrides the sentinel customer id.
func WithStandardCustomerID(id string) Option {
	return func(r *Repository) {
		if id != "" {
			r.standardCustomerID = id
		}
	}
}

// NewRepository constructs an empty repository.
func NewRepository(opts ...Option) *Repository {
	repo := &Repository{
		versions:           make(map[string][]agreement.Agreement),
		standardCustomerID: agreement.StandardCustomerID,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Put appends an agreement version.
func (r *Repository) Put(ag agreement.Agreement) error {
	if ag.CustomerID == "" {
		return agreement.ErrEmptyCustomerID
	}
	r.mu.Lock()
	r.versions[ag.CustomerID] = append(r.versions[ag.CustomerID], ag)
	r.mu.Unlock()
	return nil
}

// FindVersions returns all stored versions for a customer.
func (r *Repository) FindVersions(_ context.Context, customerID string) ([]agreement.Agreement, error) {
	if customerID == "" {
		return nil, agreement.ErrEmptyCustomerID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]agreement.Agreement(nil), r.versions[customerID]...), nil
}

// FindStandard returns all versions of the standard agreement.
func (r *Repository) FindStandard(ctx context.Context) ([]agreement.Agreement, error) {
	return r.FindVersions(ctx, r.standardCustomerID)
}
