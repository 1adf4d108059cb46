package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agreement "invoicing-cloud/internal/agreement/domain"
	pricing "invoicing-cloud/internal/pricing/domain"
)

func testRegistry() *pricing.Registry {
	registry := pricing.NewRegistry()
	registry.Register(pricing.NewStandardStrategy(pricing.NumericLenient))
	registry.Register(pricing.NewTieredStrategy(pricing.NumericLenient))
	return registry
}

func testAgreement() agreement.Agreement {
	return agreement.Agreement{
		CustomerID: "cust-1",
		Version:    4,
		Strategy:   pricing.StrategyStandard,
		Multiplier: decimal.NewFromInt(1),
		VATRate:    decimal.RequireFromString("0.10"),
		Currency:   "GBP",
		Rules:      map[string]any{"base_charge_column": "Weight Charge"},
	}
}

func TestEnginePriceLinePreservesFields(t *testing.T) {
	engine, err := NewEngine(testRegistry())
	require.NoError(t, err)

	line := pricing.ParsedLine{
		CorrelationID: "corr-1",
		Fields: map[string]string{
			"Billing Account": "ACME-001",
			"Weight Charge":   "10.00",
			"Shipment Ref":    "X-9",
		},
		Position:   2,
		IsTerminal: true,
	}

	priced, err := engine.PriceLine(line, testAgreement())
	require.NoError(t, err)

	assert.Equal(t, "corr-1", priced.CorrelationID)
	assert.Equal(t, line.Fields, priced.Fields)
	assert.Equal(t, 2, priced.Position)
	assert.True(t, priced.IsTerminal)
	assert.Equal(t, "GBP", priced.Currency)
	assert.Equal(t, "4", priced.AgreementVersion)
	assert.Equal(t, "10.00", priced.NettTotal.StringFixed(2))
	assert.Equal(t, "1.00", priced.VATAmount.StringFixed(2))
	assert.Equal(t, "11.00", priced.LineTotal.StringFixed(2))
}

func TestEnginePriceLineCopiesFields(t *testing.T) {
	engine, err := NewEngine(testRegistry())
	require.NoError(t, err)

	fields := map[string]string{"Weight Charge": "1.00"}
	line := pricing.ParsedLine{CorrelationID: "corr-1", Fields: fields}

	priced, err := engine.PriceLine(line, testAgreement())
	require.NoError(t, err)

	fields["Weight Charge"] = "mutated"
	assert.Equal(t, "1.00", priced.Fields["Weight Charge"])
}

func TestEngineDefaultCurrency(t *testing.T) {
	engine, err := NewEngine(testRegistry(), WithDefaultCurrency("NOK"))
	require.NoError(t, err)

	ag := testAgreement()
	ag.Currency = ""

	priced, err := engine.PriceLine(pricing.ParsedLine{Fields: map[string]string{}}, ag)
	require.NoError(t, err)
	assert.Equal(t, "NOK", priced.Currency)
}

func TestEngineValidateAgreement(t *testing.T) {
	engine, err := NewEngine(testRegistry())
	require.NoError(t, err)

	t.Run("missing version", func(t *testing.T) {
		ag := testAgreement()
		ag.Version = 0
		var invalid *pricing.InvalidAgreementError
		require.ErrorAs(t, engine.ValidateAgreement(ag), &invalid)
	})

	t.Run("empty ruleset", func(t *testing.T) {
		ag := testAgreement()
		ag.Rules = nil
		var invalid *pricing.InvalidAgreementError
		require.ErrorAs(t, engine.ValidateAgreement(ag), &invalid)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		ag := testAgreement()
		ag.Strategy = "bogus"
		var unsupported *pricing.UnsupportedStrategyError
		require.ErrorAs(t, engine.ValidateAgreement(ag), &unsupported)
	})

	t.Run("strategy rules checked", func(t *testing.T) {
		ag := testAgreement()
		ag.Strategy = pricing.StrategyTiered
		ag.Rules = map[string]any{"quantity_column": "Quantity"}
		var invalid *pricing.InvalidAgreementError
		require.ErrorAs(t, engine.ValidateAgreement(ag), &invalid)
	})
}

func TestEnginePriceLinesAbortsOnFailure(t *testing.T) {
	registry := pricing.NewRegistry()
	registry.Register(pricing.NewStandardStrategy(pricing.NumericStrict))
	engine, err := NewEngine(registry)
	require.NoError(t, err)

	lines := []pricing.ParsedLine{
		{CorrelationID: "corr-1", Fields: map[string]string{"Weight Charge": "1.00"}, Position: 1},
		{CorrelationID: "corr-1", Fields: map[string]string{"Weight Charge": "oops"}, Position: 2},
	}

	_, err = engine.PriceLines(lines, testAgreement())
	var malformed *pricing.MalformedFieldError
	require.ErrorAs(t, err, &malformed)
}

func TestNewEngineRequiresRegistry(t *testing.T) {
	_, err := NewEngine(nil)
	require.Error(t, err)
}
