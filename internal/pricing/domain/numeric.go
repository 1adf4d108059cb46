package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NumericPolicy controls how malformed numeric fields are treated.
type NumericPolicy int

const (
	// NumericLenient treats malformed values as zero. This matches the
	// historical carrier-data behavior; bad values are silently absorbed.
	NumericLenient NumericPolicy = iota
	// NumericStrict fails the line with a MalformedFieldError instead.
	NumericStrict
)

// ParseNumericPolicy maps a configuration string to a policy.
func ParseNumericPolicy(s string) (NumericPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return NumericLenient, true
	case "strict":
		return NumericStrict, true
	}
	return NumericLenient, false
}

// fieldDecimal reads a numeric column from a raw line. An absent column is
// zero under both policies; a present but unparsable value is zero under
// lenient and an error under strict.
func fieldDecimal(fields map[string]string, column string, policy NumericPolicy) (decimal.Decimal, error) {
	raw, ok := fields[column]
	if !ok {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		if policy == NumericStrict {
			return decimal.Zero, &MalformedFieldError{Column: column, Value: raw}
		}
		return decimal.Zero, nil
	}
	return value, nil
}
