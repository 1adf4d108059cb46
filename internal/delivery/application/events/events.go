package events

import "time"

// InvoiceRendered is emitted after the invoice document is written out.
type InvoiceRendered struct {
	CorrelationID string    `json:"correlation_id"`
	InvoiceID     string    `json:"invoice_id"`
	DocumentPath  string    `json:"document_path"`
	Format        string    `json:"format"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// InvoiceSent is emitted after the rendered invoice was handed to the
// delivery channel.
type InvoiceSent struct {
	CorrelationID string    `json:"correlation_id"`
	InvoiceID     string    `json:"invoice_id"`
	Channel       string    `json:"channel"`
	OccurredAt    time.Time `json:"occurred_at"`
}
