package agreement

import (
	"errors"
	"fmt"
)

// ErrEmptyCustomerID is returned when a customer id is required but missing.
var ErrEmptyCustomerID = errors.New("agreement: empty customer id")

// MissingError indicates that neither a customer-specific nor a standard
// agreement is effective. Pricing without an agreement is never acceptable,
// so callers must abort the whole batch for that customer.
type MissingError struct {
	CustomerID string
	InvoiceID  string
}

func (e *MissingError) Error() string {
	if e.InvoiceID != "" {
		return fmt.Sprintf("agreement missing: no valid agreement found for customer %q (invoice %s)", e.CustomerID, e.InvoiceID)
	}
	return fmt.Sprintf("agreement missing: no valid agreement found for customer %q", e.CustomerID)
}

// IsMissing reports whether err is an agreement-missing condition.
func IsMissing(err error) bool {
	var missing *MissingError
	return errors.As(err, &missing)
}
