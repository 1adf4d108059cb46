package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule map helpers. Agreement rules arrive as a JSON-decoded map; each
// strategy parses and validates its own keys once per agreement, never per
// line.

func ruleString(rules map[string]any, key string) (string, bool, error) {
	value, ok := rules[key]
	if !ok || value == nil {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, &InvalidAgreementError{Reason: fmt.Sprintf("rule %q must be a string", key)}
	}
	return s, true, nil
}

func ruleStringSlice(rules map[string]any, key string) ([]string, error) {
	value, ok := rules[key]
	if !ok || value == nil {
		return nil, nil
	}
	switch typed := value.(type) {
	case []string:
		return typed, nil
	case []any:
		result := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, &InvalidAgreementError{Reason: fmt.Sprintf("rule %q must be a list of strings", key)}
			}
			result = append(result, s)
		}
		return result, nil
	}
	return nil, &InvalidAgreementError{Reason: fmt.Sprintf("rule %q must be a list of strings", key)}
}

func ruleDecimal(rules map[string]any, key string) (decimal.Decimal, bool, error) {
	value, ok := rules[key]
	if !ok || value == nil {
		return decimal.Zero, false, nil
	}
	d, err := anyToDecimal(value)
	if err != nil {
		return decimal.Zero, false, &InvalidAgreementError{Reason: fmt.Sprintf("rule %q must be numeric", key)}
	}
	return d, true, nil
}

func anyToDecimal(value any) (decimal.Decimal, error) {
	switch typed := value.(type) {
	case decimal.Decimal:
		return typed, nil
	case float64:
		return decimal.NewFromFloat(typed), nil
	case float32:
		return decimal.NewFromFloat32(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	case json.Number:
		return decimal.NewFromString(typed.String())
	case string:
		return decimal.NewFromString(typed)
	}
	return decimal.Zero, fmt.Errorf("pricing: value %v is not numeric", value)
}
