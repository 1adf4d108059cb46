package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
)

const defaultAgreementsTable = "agreements"

var percentDivisor = decimal.NewFromInt(100)

// Repository reads agreement versions from Postgres. Agreements are
// append-only: the pricing path never writes to this table.
type Repository struct {
	db                 *sql.DB
	table              string
	standardCustomerID string
	percentMultipliers bool
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the agreements table name.
func WithTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithStandardCustomerID overrides the sentinel customer id.
func WithStandardCustomerID(id string) Option {
	return func(r *Repository) {
		if id != "" {
			r.standardCustomerID = id
		}
	}
}

// WithPercentMultipliers converts legacy integer-percentage multipliers
// (120 meaning 120%) to decimal factors at the storage boundary. The core
// only ever sees decimal factors; there is no range-based guessing.
func WithPercentMultipliers() Option {
	return func(r *Repository) {
		r.percentMultipliers = true
	}
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	repo := &Repository{
		db:                 db,
		table:              defaultAgreementsTable,
		standardCustomerID: agreement.StandardCustomerID,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FindVersions returns all stored versions for a customer.
func (r *Repository) FindVersions(ctx context.Context, customerID string) ([]agreement.Agreement, error) {
	if customerID == "" {
		return nil, agreement.ErrEmptyCustomerID
	}
	return r.query(ctx, customerID)
}

// FindStandard returns all versions of the standard agreement.
func (r *Repository) FindStandard(ctx context.Context) ([]agreement.Agreement, error) {
	return r.query(ctx, r.standardCustomerID)
}

func (r *Repository) query(ctx context.Context, customerID string) ([]agreement.Agreement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("agreement repository: nil db")
	}
	query := fmt.Sprintf(`
SELECT customer_id, version, strategy, multiplier::text, vat_rate::text, currency, rules, valid_from
FROM %s
WHERE customer_id = $1
ORDER BY valid_from ASC, version ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agreement.Agreement
	for rows.Next() {
		var (
			ag         agreement.Agreement
			multiplier string
			vatRate    string
			rules      []byte
		)
		if err := rows.Scan(&ag.CustomerID, &ag.Version, &ag.Strategy, &multiplier, &vatRate, &rules, &ag.ValidFrom); err != nil {
			return nil, err
		}
		if ag.Multiplier, err = decimal.NewFromString(multiplier); err != nil {
			return nil, fmt.Errorf("agreement repository: bad multiplier for %s v%d: %w", ag.CustomerID, ag.Version, err)
		}
		if ag.VATRate, err = decimal.NewFromString(vatRate); err != nil {
			return nil, fmt.Errorf("agreement repository: bad vat rate for %s v%d: %w", ag.CustomerID, ag.Version, err)
		}
		if r.percentMultipliers {
			ag.Multiplier = ag.Multiplier.Div(percentDivisor)
		}
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &ag.Rules); err != nil {
				return nil, fmt.Errorf("agreement repository: bad rules for %s v%d: %w", ag.CustomerID, ag.Version, err)
			}
		}
		result = append(result, ag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert stores a new agreement version. Used by seeding and administrative
// tooling only; existing versions are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, ag agreement.Agreement) error {
	if r == nil || r.db == nil {
		return errors.New("agreement repository: nil db")
	}
	if ag.CustomerID == "" {
		return agreement.ErrEmptyCustomerID
	}
	rules, err := json.Marshal(ag.Rules)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (customer_id, version, strategy, multiplier, vat_rate, currency, rules, valid_from, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		ag.CustomerID, ag.Version, ag.Strategy,
		ag.Multiplier.String(), ag.VATRate.String(),
		ag.Currency, rules, ag.ValidFrom.UTC(),
	)
	return err
}
