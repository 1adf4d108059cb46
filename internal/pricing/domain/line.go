package pricing

import "github.com/shopspring/decimal"

// ParsedLine is one raw carrier invoice row. Fields hold raw column name to
// raw string value; the terminal flag marks the last row of the batch.
type ParsedLine struct {
	CorrelationID string            `json:"correlation_id"`
	Fields        map[string]string `json:"fields"`
	Position      int               `json:"position"`
	IsTerminal    bool              `json:"is_terminal"`
}

// PricedLine is a parsed line enriched with computed charges. Every original
// field is preserved; downstream assembly and rendering rely on that.
type PricedLine struct {
	CorrelationID    string            `json:"correlation_id"`
	Fields           map[string]string `json:"fields"`
	NettTotal        decimal.Decimal   `json:"nett_total"`
	VATAmount        decimal.Decimal   `json:"vat_amount"`
	LineTotal        decimal.Decimal   `json:"line_total"`
	Currency         string            `json:"currency"`
	AgreementVersion string            `json:"agreement_version"`
	Position         int               `json:"position"`
	IsTerminal       bool              `json:"is_terminal"`
}
