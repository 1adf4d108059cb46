package domain

import (
	"time"

	"github.com/shopspring/decimal"

	pricing "invoicing-cloud/internal/pricing/domain"
)

// Invoice is the assembled billing document for one carrier file.
type Invoice struct {
	ID            string               `json:"id"`
	CorrelationID string               `json:"correlation_id"`
	Lines         []pricing.PricedLine `json:"lines"`
	NettTotal     decimal.Decimal      `json:"nett_total"`
	VATTotal      decimal.Decimal      `json:"vat_total"`
	Total         decimal.Decimal      `json:"total"`
	Currency      string               `json:"currency"`
	AssembledAt   time.Time            `json:"assembled_at"`
}

// AssembleInvoice builds an invoice from a finalized bucket. Lines keep the
// order in which they reached the bucket; totals are exact sums of the
// already-rounded per-line amounts.
func AssembleInvoice(id string, bucket *Bucket, at time.Time) (Invoice, error) {
	if bucket == nil || bucket.Status() != StatusFinalized {
		return Invoice{}, ErrBucketNotFinalized
	}
	lines := bucket.Lines()

	invoice := Invoice{
		ID:            id,
		CorrelationID: bucket.CorrelationID(),
		Lines:         lines,
		AssembledAt:   at,
	}
	for _, line := range lines {
		invoice.NettTotal = invoice.NettTotal.Add(line.NettTotal)
		invoice.VATTotal = invoice.VATTotal.Add(line.VATAmount)
		invoice.Total = invoice.Total.Add(line.LineTotal)
		if invoice.Currency == "" {
			invoice.Currency = line.Currency
		}
	}
	return invoice, nil
}
