package events

import (
	"time"

	pricing "invoicing-cloud/internal/pricing/domain"
)

// InvoiceLinePriced is published for every successfully priced carrier line.
type InvoiceLinePriced struct {
	CorrelationID string             `json:"correlation_id"`
	Line          pricing.PricedLine `json:"line"`
	AgreementType string             `json:"agreement_type"`
	Strategy      string             `json:"strategy"`
	OccurredAt    time.Time          `json:"occurred_at"`
}
