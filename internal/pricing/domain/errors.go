package pricing

import (
	"errors"
	"fmt"
)

// UnsupportedStrategyError indicates an agreement names a strategy that is
// not registered. This is a broken agreement record, not a transient fault.
type UnsupportedStrategyError struct {
	Name string
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("pricing: unsupported pricing strategy %q", e.Name)
}

// InvalidAgreementError indicates required configuration is absent or
// malformed for the selected strategy. Fatal, same category as an unknown
// strategy.
type InvalidAgreementError struct {
	Reason string
}

func (e *InvalidAgreementError) Error() string {
	return "pricing: invalid agreement: " + e.Reason
}

// MalformedFieldError indicates a charge column that cannot parse as a
// number, raised only under the strict numeric policy.
type MalformedFieldError struct {
	Column string
	Value  string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("pricing: malformed numeric field %q: %q", e.Column, e.Value)
}

// IsFatalAgreementError reports whether err means the agreement itself is
// broken and the batch must not be retried.
func IsFatalAgreementError(err error) bool {
	var unsupported *UnsupportedStrategyError
	var invalid *InvalidAgreementError
	return errors.As(err, &unsupported) || errors.As(err, &invalid)
}
