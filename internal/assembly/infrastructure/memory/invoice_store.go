package memory

import (
	"context"
	"sync"

	assembly "invoicing-cloud/internal/assembly/domain"
)

// InvoiceStore keeps assembled invoices in process memory, keyed by
// correlation id. Used when no database is configured.
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices map[string]assembly.Invoice
}

// NewInvoiceStore constructs an empty store.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]assembly.Invoice)}
}

// Save stores the invoice unless one already exists for the batch.
func (s *InvoiceStore) Save(ctx context.Context, invoice assembly.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[invoice.CorrelationID]; !ok {
		s.invoices[invoice.CorrelationID] = invoice
	}
	return nil
}

// FindByCorrelation returns the invoice for one batch.
func (s *InvoiceStore) FindByCorrelation(ctx context.Context, correlationID string) (assembly.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return assembly.Invoice{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := s.invoices[correlationID]
	if !ok {
		return assembly.Invoice{}, assembly.ErrBucketNotFound
	}
	return invoice, nil
}
