package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	pricing "invoicing-cloud/internal/pricing/domain"
)

const defaultEnrichedLineTable = "enriched_invoice_lines"

// EnrichedLineRepository stores priced lines for audit and reporting.
type EnrichedLineRepository struct {
	db    *sql.DB
	table string
}

// EnrichedLineOption configures the repository.
type EnrichedLineOption func(*EnrichedLineRepository)

// WithEnrichedLineTable overrides the table name.
func WithEnrichedLineTable(table string) EnrichedLineOption {
	return func(r *EnrichedLineRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewEnrichedLineRepository constructs a repository backed by db.
func NewEnrichedLineRepository(db *sql.DB, opts ...EnrichedLineOption) (*EnrichedLineRepository, error) {
	if db == nil {
		return nil, errors.New("enriched line repository: nil db")
	}
	repo := &EnrichedLineRepository{db: db, table: defaultEnrichedLineTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Save inserts one priced line.
func (r *EnrichedLineRepository) Save(ctx context.Context, line pricing.PricedLine, agreementType, strategy string) error {
	rawLine, err := json.Marshal(line.Fields)
	if err != nil {
		return fmt.Errorf("marshal raw line: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			correlation_id, position, raw_line,
			nett_total, vat_amount, line_total, currency,
			agreement_version, agreement_type, strategy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		line.CorrelationID,
		line.Position,
		rawLine,
		line.NettTotal.String(),
		line.VATAmount.String(),
		line.LineTotal.String(),
		line.Currency,
		line.AgreementVersion,
		agreementType,
		strategy,
	)
	if err != nil {
		return fmt.Errorf("insert enriched line: %w", err)
	}
	return nil
}

// ListByCorrelation returns all priced lines for one invoice file in
// extraction order.
func (r *EnrichedLineRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]pricing.PricedLine, error) {
	query := fmt.Sprintf(`
		SELECT correlation_id, position, raw_line,
		       nett_total::text, vat_amount::text, line_total::text,
		       currency, agreement_version
		FROM %s
		WHERE correlation_id = $1
		ORDER BY position`, r.table)
	rows, err := r.db.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list enriched lines: %w", err)
	}
	defer rows.Close()

	var lines []pricing.PricedLine
	for rows.Next() {
		var (
			line    pricing.PricedLine
			rawLine []byte
			nett    string
			vat     string
			total   string
		)
		if err := rows.Scan(&line.CorrelationID, &line.Position, &rawLine, &nett, &vat, &total, &line.Currency, &line.AgreementVersion); err != nil {
			return nil, fmt.Errorf("scan enriched line: %w", err)
		}
		if err := json.Unmarshal(rawLine, &line.Fields); err != nil {
			return nil, fmt.Errorf("decode raw line: %w", err)
		}
		if line.NettTotal, err = parseDecimal(nett); err != nil {
			return nil, err
		}
		if line.VATAmount, err = parseDecimal(vat); err != nil {
			return nil, err
		}
		if line.LineTotal, err = parseDecimal(total); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
