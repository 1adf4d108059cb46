package application

import (
	"context"
	"errors"
	"testing"
	"time"

	agreement "invoicing-cloud/internal/agreement/domain"
)

type stubRepo struct {
	versions  map[string][]agreement.Agreement
	standards []agreement.Agreement
	err       error
}

func (s *stubRepo) FindVersions(ctx context.Context, customerID string) ([]agreement.Agreement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.versions[customerID], nil
}

func (s *stubRepo) FindStandard(ctx context.Context) ([]agreement.Agreement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.standards, nil
}

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 0, 0, 0, 0, time.UTC)
}

func TestResolverPrefersLatestEffectiveVersion(t *testing.T) {
	repo := &stubRepo{versions: map[string][]agreement.Agreement{
		"acme": {
			{CustomerID: "acme", Version: 1, ValidFrom: day(1)},
			{CustomerID: "acme", Version: 2, ValidFrom: day(10)},
			{CustomerID: "acme", Version: 3, ValidFrom: day(20)},
		},
	}}
	resolver, err := NewResolver(repo)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	got, err := resolver.Resolve(context.Background(), "acme", day(15))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
	if got.Type != agreement.TypeCustom {
		t.Fatalf("expected custom type, got %q", got.Type)
	}
}

func TestResolverIsDeterministic(t *testing.T) {
	repo := &stubRepo{versions: map[string][]agreement.Agreement{
		"acme": {
			{CustomerID: "acme", Version: 2, ValidFrom: day(5)},
			{CustomerID: "acme", Version: 1, ValidFrom: day(1)},
		},
	}}
	resolver, _ := NewResolver(repo)

	at := day(7)
	first, err := resolver.Resolve(context.Background(), "acme", at)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), "acme", at)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Version != second.Version {
		t.Fatalf("resolution not stable: %d then %d", first.Version, second.Version)
	}
}

func TestResolverTieBreaksByVersion(t *testing.T) {
	repo := &stubRepo{versions: map[string][]agreement.Agreement{
		"acme": {
			{CustomerID: "acme", Version: 4, ValidFrom: day(3)},
			{CustomerID: "acme", Version: 5, ValidFrom: day(3)},
		},
	}}
	resolver, _ := NewResolver(repo)

	got, err := resolver.Resolve(context.Background(), "acme", day(4))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Version != 5 {
		t.Fatalf("expected version 5, got %d", got.Version)
	}
}

func TestResolverFallsBackToStandard(t *testing.T) {
	repo := &stubRepo{
		standards: []agreement.Agreement{
			{CustomerID: agreement.StandardCustomerID, Version: 1, ValidFrom: day(1)},
			{CustomerID: agreement.StandardCustomerID, Version: 2, ValidFrom: day(2)},
		},
	}
	resolver, _ := NewResolver(repo)

	got, err := resolver.Resolve(context.Background(), "unknown", day(5))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Version != 2 || got.Type != agreement.TypeStandard {
		t.Fatalf("expected standard version 2, got %+v", got)
	}
}

func TestResolverIgnoresFutureVersions(t *testing.T) {
	repo := &stubRepo{
		versions: map[string][]agreement.Agreement{
			"acme": {{CustomerID: "acme", Version: 9, ValidFrom: day(20)}},
		},
		standards: []agreement.Agreement{
			{CustomerID: agreement.StandardCustomerID, Version: 1, ValidFrom: day(1)},
		},
	}
	resolver, _ := NewResolver(repo)

	got, err := resolver.Resolve(context.Background(), "acme", day(10))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Type != agreement.TypeStandard {
		t.Fatalf("expected fallback to standard, got %+v", got)
	}
}

func TestResolverMissingError(t *testing.T) {
	resolver, _ := NewResolver(&stubRepo{})

	_, err := resolver.ResolveForInvoice(context.Background(), "acme", "inv-42", day(1))
	var missing *agreement.MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	if missing.CustomerID != "acme" || missing.InvoiceID != "inv-42" {
		t.Fatalf("unexpected error detail: %+v", missing)
	}
}

func TestResolverPropagatesRepositoryError(t *testing.T) {
	repoErr := errors.New("connection refused")
	resolver, _ := NewResolver(&stubRepo{err: repoErr})

	_, err := resolver.Resolve(context.Background(), "acme", day(1))
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
}
