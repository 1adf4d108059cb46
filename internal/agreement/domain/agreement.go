package agreement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes customer-specific agreements from the shared default.
type Type string

const (
	TypeCustom   Type = "custom"
	TypeStandard Type = "standard"
)

// StandardCustomerID is the sentinel customer holding the default agreement.
const StandardCustomerID = "standard"

// Agreement is a versioned, immutable pricing contract. A change is always a
// new version with a later ValidFrom; versions are monotonic per customer.
type Agreement struct {
	CustomerID string
	Version    int
	Strategy   string
	Multiplier decimal.Decimal
	VATRate    decimal.Decimal
	Currency   string
	Rules      map[string]any
	ValidFrom  time.Time
	Type       Type
}

// EffectiveAt reports whether the agreement version is in force at the
// given instant.
func (a Agreement) EffectiveAt(at time.Time) bool {
	return !a.ValidFrom.After(at)
}
