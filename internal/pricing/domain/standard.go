package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// StrategyStandard is the name of the standard pricing strategy.
const StrategyStandard = "standard"

const (
	ruleBaseChargeColumn = "base_charge_column"
	ruleSurchargeColumns = "surcharge_columns"
	ruleSurchargePrefix  = "surcharge_prefix"
	ruleSurchargeSuffix  = "surcharge_suffix"

	defaultBaseChargeColumn = "Weight Charge"
	defaultChargeSuffix     = "Charge"
)

// StandardStrategy prices a line as (base charge + surcharges) * multiplier.
// Column names are agreement-configurable so arbitrary carrier layouts work:
// surcharges come from an explicit column list, or failing that from a
// prefix/suffix pattern over the column names.
type StandardStrategy struct {
	policy NumericPolicy
}

// NewStandardStrategy constructs the strategy.
func NewStandardStrategy(policy NumericPolicy) *StandardStrategy {
	return &StandardStrategy{policy: policy}
}

// Name implements Strategy.
func (s *StandardStrategy) Name() string { return StrategyStandard }

type standardRules struct {
	baseColumn       string
	surchargeColumns []string
	prefix           string
	suffix           string
}

func parseStandardRules(rules map[string]any) (standardRules, error) {
	parsed := standardRules{baseColumn: defaultBaseChargeColumn}

	if base, ok, err := ruleString(rules, ruleBaseChargeColumn); err != nil {
		return standardRules{}, err
	} else if ok {
		if strings.TrimSpace(base) == "" {
			return standardRules{}, &InvalidAgreementError{Reason: "base charge column must not be blank"}
		}
		parsed.baseColumn = base
	}

	columns, err := ruleStringSlice(rules, ruleSurchargeColumns)
	if err != nil {
		return standardRules{}, err
	}
	parsed.surchargeColumns = columns

	if prefix, ok, err := ruleString(rules, ruleSurchargePrefix); err != nil {
		return standardRules{}, err
	} else if ok {
		parsed.prefix = prefix
	}
	if suffix, ok, err := ruleString(rules, ruleSurchargeSuffix); err != nil {
		return standardRules{}, err
	} else if ok {
		parsed.suffix = suffix
	}
	if parsed.prefix == "" && parsed.suffix == "" {
		parsed.suffix = defaultChargeSuffix
	}

	return parsed, nil
}

// Validate implements Strategy.
func (s *StandardStrategy) Validate(ag agreement.Agreement) error {
	_, err := parseStandardRules(ag.Rules)
	return err
}

// Price implements Strategy.
func (s *StandardStrategy) Price(fields map[string]string, ag agreement.Agreement) (Charges, error) {
	rules, err := parseStandardRules(ag.Rules)
	if err != nil {
		return Charges{}, err
	}

	baseCharge, err := fieldDecimal(fields, rules.baseColumn, s.policy)
	if err != nil {
		return Charges{}, err
	}

	surchargeTotal := decimal.Zero
	if len(rules.surchargeColumns) > 0 {
		for _, column := range rules.surchargeColumns {
			value, err := fieldDecimal(fields, column, s.policy)
			if err != nil {
				return Charges{}, err
			}
			surchargeTotal = surchargeTotal.Add(value)
		}
	} else {
		for column := range fields {
			if !rules.matchesSurcharge(column) {
				continue
			}
			value, err := fieldDecimal(fields, column, s.policy)
			if err != nil {
				return Charges{}, err
			}
			surchargeTotal = surchargeTotal.Add(value)
		}
	}

	nett := baseCharge.Add(surchargeTotal).Mul(ag.Multiplier)
	return finishCharges(nett, ag.VATRate), nil
}

func (r standardRules) matchesSurcharge(column string) bool {
	if column == r.baseColumn {
		return false
	}
	if r.prefix != "" && !strings.HasPrefix(column, r.prefix) {
		return false
	}
	if r.suffix != "" && !strings.HasSuffix(column, r.suffix) {
		return false
	}
	return true
}
