package application

import (
	"errors"
	"strconv"

	agreement "invoicing-cloud/internal/agreement/domain"
	pricing "invoicing-cloud/internal/pricing/domain"
)

const defaultCurrency = "EUR"

// Engine validates an agreement, selects a strategy from the registry and
// computes a priced line from a raw parsed line. Computation is a pure
// function of (fields, agreement): no hidden state, no I/O.
type Engine struct {
	registry *pricing.Registry
	currency string
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDefaultCurrency overrides the currency used when the agreement names
// none.
func WithDefaultCurrency(currency string) EngineOption {
	return func(e *Engine) {
		if currency != "" {
			e.currency = currency
		}
	}
}

// NewEngine constructs an engine.
func NewEngine(registry *pricing.Registry, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("pricing engine: nil registry")
	}
	engine := &Engine{registry: registry, currency: defaultCurrency}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// ValidateAgreement checks the agreement once, ahead of pricing a batch:
// version and ruleset must be present and the strategy-specific keys must
// parse. Errors here are configuration faults, never retryable.
func (e *Engine) ValidateAgreement(ag agreement.Agreement) error {
	if ag.Version <= 0 {
		return &pricing.InvalidAgreementError{Reason: "agreement version is required"}
	}
	if len(ag.Rules) == 0 {
		return &pricing.InvalidAgreementError{Reason: "agreement must contain a ruleset"}
	}
	strategy, err := e.registry.Resolve(ag.Strategy)
	if err != nil {
		return err
	}
	return strategy.Validate(ag)
}

// PriceLine computes charges for one parsed line under the agreement. Every
// original field is preserved on the priced line.
func (e *Engine) PriceLine(line pricing.ParsedLine, ag agreement.Agreement) (pricing.PricedLine, error) {
	if err := e.ValidateAgreement(ag); err != nil {
		return pricing.PricedLine{}, err
	}
	strategy, err := e.registry.Resolve(ag.Strategy)
	if err != nil {
		return pricing.PricedLine{}, err
	}

	charges, err := strategy.Price(line.Fields, ag)
	if err != nil {
		return pricing.PricedLine{}, err
	}

	fields := make(map[string]string, len(line.Fields))
	for key, value := range line.Fields {
		fields[key] = value
	}

	currency := ag.Currency
	if currency == "" {
		currency = e.currency
	}

	return pricing.PricedLine{
		CorrelationID:    line.CorrelationID,
		Fields:           fields,
		NettTotal:        charges.NettTotal,
		VATAmount:        charges.VATAmount,
		LineTotal:        charges.LineTotal,
		Currency:         currency,
		AgreementVersion: strconv.Itoa(ag.Version),
		Position:         line.Position,
		IsTerminal:       line.IsTerminal,
	}, nil
}

// PriceLines prices a batch of lines under one agreement. The agreement is
// validated once; any line failure aborts the batch.
func (e *Engine) PriceLines(lines []pricing.ParsedLine, ag agreement.Agreement) ([]pricing.PricedLine, error) {
	if err := e.ValidateAgreement(ag); err != nil {
		return nil, err
	}
	result := make([]pricing.PricedLine, 0, len(lines))
	for _, line := range lines {
		priced, err := e.PriceLine(line, ag)
		if err != nil {
			return nil, err
		}
		result = append(result, priced)
	}
	return result, nil
}
