package agreement

import "context"

// Repository reads agreement versions. Implementations return versions in any
// order; selection of the effective version belongs to the resolver.
type Repository interface {
	FindVersions(ctx context.Context, customerID string) ([]Agreement, error)
	FindStandard(ctx context.Context) ([]Agreement, error)
}
