package application

import (
	"context"
	"errors"
	"time"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// Resolver applies temporal and fallback resolution over repository results
// to produce the single effective agreement for a customer at an instant.
type Resolver struct {
	repo agreement.Repository
}

// NewResolver constructs a resolver.
func NewResolver(repo agreement.Repository) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("agreement resolver: nil repository")
	}
	return &Resolver{repo: repo}, nil
}

// Resolve returns the effective agreement for a customer at the given time.
// Customer-specific versions win; otherwise the standard agreement applies.
// Resolving the same (customerID, now) twice against an unchanged repository
// returns the same version, which keeps historical invoices reproducible.
func (r *Resolver) Resolve(ctx context.Context, customerID string, now time.Time) (agreement.Agreement, error) {
	return r.resolve(ctx, customerID, "", now)
}

// ResolveForInvoice behaves like Resolve but attaches the invoice id to an
// agreement-missing error for diagnostics.
func (r *Resolver) ResolveForInvoice(ctx context.Context, customerID, invoiceID string, now time.Time) (agreement.Agreement, error) {
	return r.resolve(ctx, customerID, invoiceID, now)
}

func (r *Resolver) resolve(ctx context.Context, customerID, invoiceID string, now time.Time) (agreement.Agreement, error) {
	if customerID != "" {
		versions, err := r.repo.FindVersions(ctx, customerID)
		if err != nil {
			return agreement.Agreement{}, err
		}
		if best, ok := pickEffective(versions, now); ok {
			best.Type = agreement.TypeCustom
			return best, nil
		}
	}

	standards, err := r.repo.FindStandard(ctx)
	if err != nil {
		return agreement.Agreement{}, err
	}
	if best, ok := pickEffective(standards, now); ok {
		best.Type = agreement.TypeStandard
		return best, nil
	}

	return agreement.Agreement{}, &agreement.MissingError{CustomerID: customerID, InvoiceID: invoiceID}
}

// pickEffective selects the version with the greatest ValidFrom not exceeding
// now, breaking ties by the greatest version number.
func pickEffective(versions []agreement.Agreement, now time.Time) (agreement.Agreement, bool) {
	var best agreement.Agreement
	found := false
	for _, v := range versions {
		if !v.EffectiveAt(now) {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		if v.ValidFrom.After(best.ValidFrom) {
			best = v
			continue
		}
		if v.ValidFrom.Equal(best.ValidFrom) && v.Version > best.Version {
			best = v
		}
	}
	return best, found
}
