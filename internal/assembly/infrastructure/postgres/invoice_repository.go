package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	assembly "invoicing-cloud/internal/assembly/domain"
)

const defaultInvoiceTable = "invoices"

// InvoiceRepository persists assembled invoices.
type InvoiceRepository struct {
	db    *sql.DB
	table string
}

// InvoiceOption configures the repository.
type InvoiceOption func(*InvoiceRepository)

// WithInvoiceTable overrides the table name.
func WithInvoiceTable(table string) InvoiceOption {
	return func(r *InvoiceRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewInvoiceRepository constructs a repository backed by db.
func NewInvoiceRepository(db *sql.DB, opts ...InvoiceOption) (*InvoiceRepository, error) {
	if db == nil {
		return nil, errors.New("invoice repository: nil db")
	}
	repo := &InvoiceRepository{db: db, table: defaultInvoiceTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Save upserts one invoice keyed by correlation id, so redelivery of an
// assembled invoice cannot create a second row.
func (r *InvoiceRepository) Save(ctx context.Context, invoice assembly.Invoice) error {
	lines, err := json.Marshal(invoice.Lines)
	if err != nil {
		return fmt.Errorf("marshal invoice lines: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, correlation_id, lines, nett_total, vat_total, total,
			currency, assembled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (correlation_id) DO NOTHING`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.CorrelationID,
		lines,
		invoice.NettTotal.String(),
		invoice.VATTotal.String(),
		invoice.Total.String(),
		invoice.Currency,
		invoice.AssembledAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// FindByCorrelation loads the invoice assembled for one batch.
func (r *InvoiceRepository) FindByCorrelation(ctx context.Context, correlationID string) (assembly.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT id, correlation_id, lines,
		       nett_total::text, vat_total::text, total::text,
		       currency, assembled_at
		FROM %s
		WHERE correlation_id = $1`, r.table)

	var (
		invoice assembly.Invoice
		lines   []byte
		nett    string
		vat     string
		total   string
	)
	err := r.db.QueryRowContext(ctx, query, correlationID).Scan(
		&invoice.ID, &invoice.CorrelationID, &lines,
		&nett, &vat, &total,
		&invoice.Currency, &invoice.AssembledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return assembly.Invoice{}, assembly.ErrBucketNotFound
	}
	if err != nil {
		return assembly.Invoice{}, fmt.Errorf("find invoice: %w", err)
	}
	if err := json.Unmarshal(lines, &invoice.Lines); err != nil {
		return assembly.Invoice{}, fmt.Errorf("decode invoice lines: %w", err)
	}
	if invoice.NettTotal, err = parseDecimal(nett); err != nil {
		return assembly.Invoice{}, err
	}
	if invoice.VATTotal, err = parseDecimal(vat); err != nil {
		return assembly.Invoice{}, err
	}
	if invoice.Total, err = parseDecimal(total); err != nil {
		return assembly.Invoice{}, err
	}
	return invoice, nil
}
