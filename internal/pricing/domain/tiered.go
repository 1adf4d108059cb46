package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// StrategyTiered is the name of the tiered pricing strategy.
const StrategyTiered = "tiered"

const (
	ruleQuantityColumn = "quantity_column"
	ruleTiers          = "tiers"
	tierKeyUpTo        = "up_to"
	tierKeyRate        = "rate"

	defaultQuantityColumn = "Quantity"
)

// Tier is one pricing band: up to UpTo units are charged at Rate.
type Tier struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// TieredStrategy consumes a line's quantity against successive tiers.
// Quantity beyond the last tier's ceiling is not charged; the overflow hook
// surfaces it so operators can see the gap without the strategy guessing a
// product decision.
type TieredStrategy struct {
	policy   NumericPolicy
	overflow func(remainder decimal.Decimal)
}

// TieredOption configures the strategy.
type TieredOption func(*TieredStrategy)

// WithOverflowHook registers a callback invoked with the uncharged remainder
// whenever a quantity exceeds all tiers.
func WithOverflowHook(hook func(remainder decimal.Decimal)) TieredOption {
	return func(s *TieredStrategy) {
		s.overflow = hook
	}
}

// NewTieredStrategy constructs the strategy.
func NewTieredStrategy(policy NumericPolicy, opts ...TieredOption) *TieredStrategy {
	s := &TieredStrategy{policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Strategy.
func (s *TieredStrategy) Name() string { return StrategyTiered }

type tieredRules struct {
	quantityColumn string
	tiers          []Tier
}

func parseTieredRules(rules map[string]any) (tieredRules, error) {
	parsed := tieredRules{quantityColumn: defaultQuantityColumn}

	if column, ok, err := ruleString(rules, ruleQuantityColumn); err != nil {
		return tieredRules{}, err
	} else if ok {
		parsed.quantityColumn = column
	}

	raw, ok := rules[ruleTiers]
	if !ok {
		return tieredRules{}, &InvalidAgreementError{Reason: "tiers not defined for tiered pricing strategy"}
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return tieredRules{}, &InvalidAgreementError{Reason: "tiers not defined for tiered pricing strategy"}
	}

	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return tieredRules{}, &InvalidAgreementError{Reason: fmt.Sprintf("tier %d is not an object", i)}
		}
		upTo, found, err := ruleDecimal(entry, tierKeyUpTo)
		if err != nil || !found {
			return tieredRules{}, &InvalidAgreementError{Reason: fmt.Sprintf("tier %d requires a numeric %q", i, tierKeyUpTo)}
		}
		rate, found, err := ruleDecimal(entry, tierKeyRate)
		if err != nil || !found {
			return tieredRules{}, &InvalidAgreementError{Reason: fmt.Sprintf("tier %d requires a numeric %q", i, tierKeyRate)}
		}
		if upTo.Sign() <= 0 {
			return tieredRules{}, &InvalidAgreementError{Reason: fmt.Sprintf("tier %d %q must be positive", i, tierKeyUpTo)}
		}
		if rate.Sign() < 0 {
			return tieredRules{}, &InvalidAgreementError{Reason: fmt.Sprintf("tier %d %q must not be negative", i, tierKeyRate)}
		}
		parsed.tiers = append(parsed.tiers, Tier{UpTo: upTo, Rate: rate})
	}

	return parsed, nil
}

// Validate implements Strategy.
func (s *TieredStrategy) Validate(ag agreement.Agreement) error {
	_, err := parseTieredRules(ag.Rules)
	return err
}

// Price implements Strategy.
func (s *TieredStrategy) Price(fields map[string]string, ag agreement.Agreement) (Charges, error) {
	rules, err := parseTieredRules(ag.Rules)
	if err != nil {
		return Charges{}, err
	}

	quantity, err := fieldDecimal(fields, rules.quantityColumn, s.policy)
	if err != nil {
		return Charges{}, err
	}

	nett := decimal.Zero
	remaining := quantity
	for _, tier := range rules.tiers {
		if remaining.Sign() <= 0 {
			break
		}
		inTier := decimal.Min(remaining, tier.UpTo)
		nett = nett.Add(inTier.Mul(tier.Rate))
		remaining = remaining.Sub(inTier)
	}
	if remaining.Sign() > 0 && s.overflow != nil {
		s.overflow(remaining)
	}

	return finishCharges(nett, ag.VATRate), nil
}
