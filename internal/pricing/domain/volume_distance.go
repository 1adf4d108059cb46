package pricing

import (
	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// StrategyVolumeAndDistance is the name of the volume-and-distance strategy.
const StrategyVolumeAndDistance = "volume_and_distance"

const (
	ruleVolumeColumn   = "volume_column"
	ruleDistanceColumn = "distance_column"
	ruleBaseRate       = "base_rate"
	ruleVolumeRate     = "volume_rate"
	ruleDistanceRate   = "distance_rate"

	defaultVolumeColumn   = "Volume"
	defaultDistanceColumn = "Distance"
)

// VolumeAndDistanceStrategy prices a line as
// baseRate + volume*volumeRate + distance*distanceRate, reading volume and
// distance from agreement-configurable columns (absent columns count as 0).
type VolumeAndDistanceStrategy struct {
	policy NumericPolicy
}

// NewVolumeAndDistanceStrategy constructs the strategy.
func NewVolumeAndDistanceStrategy(policy NumericPolicy) *VolumeAndDistanceStrategy {
	return &VolumeAndDistanceStrategy{policy: policy}
}

// Name implements Strategy.
func (s *VolumeAndDistanceStrategy) Name() string { return StrategyVolumeAndDistance }

type volumeDistanceRules struct {
	volumeColumn   string
	distanceColumn string
	baseRate       decimal.Decimal
	volumeRate     decimal.Decimal
	distanceRate   decimal.Decimal
}

func parseVolumeDistanceRules(rules map[string]any) (volumeDistanceRules, error) {
	parsed := volumeDistanceRules{
		volumeColumn:   defaultVolumeColumn,
		distanceColumn: defaultDistanceColumn,
	}

	if column, ok, err := ruleString(rules, ruleVolumeColumn); err != nil {
		return volumeDistanceRules{}, err
	} else if ok {
		parsed.volumeColumn = column
	}
	if column, ok, err := ruleString(rules, ruleDistanceColumn); err != nil {
		return volumeDistanceRules{}, err
	} else if ok {
		parsed.distanceColumn = column
	}

	for _, required := range []struct {
		key    string
		target *decimal.Decimal
	}{
		{ruleBaseRate, &parsed.baseRate},
		{ruleVolumeRate, &parsed.volumeRate},
		{ruleDistanceRate, &parsed.distanceRate},
	} {
		value, found, err := ruleDecimal(rules, required.key)
		if err != nil {
			return volumeDistanceRules{}, err
		}
		if !found {
			return volumeDistanceRules{}, &InvalidAgreementError{Reason: "rule " + required.key + " is required for volume and distance pricing"}
		}
		*required.target = value
	}

	return parsed, nil
}

// Validate implements Strategy.
func (s *VolumeAndDistanceStrategy) Validate(ag agreement.Agreement) error {
	_, err := parseVolumeDistanceRules(ag.Rules)
	return err
}

// Price implements Strategy.
func (s *VolumeAndDistanceStrategy) Price(fields map[string]string, ag agreement.Agreement) (Charges, error) {
	rules, err := parseVolumeDistanceRules(ag.Rules)
	if err != nil {
		return Charges{}, err
	}

	volume, err := fieldDecimal(fields, rules.volumeColumn, s.policy)
	if err != nil {
		return Charges{}, err
	}
	distance, err := fieldDecimal(fields, rules.distanceColumn, s.policy)
	if err != nil {
		return Charges{}, err
	}

	nett := rules.baseRate.
		Add(volume.Mul(rules.volumeRate)).
		Add(distance.Mul(rules.distanceRate))
	return finishCharges(nett, ag.VATRate), nil
}
