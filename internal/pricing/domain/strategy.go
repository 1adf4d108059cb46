package pricing

import (
	"sync"

	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
)

// chargeScale is the currency-minor-unit precision for all computed charges.
const chargeScale = 2

// Charges holds the computed amounts for one line. The invariant
// LineTotal == NettTotal + VATAmount holds exactly after rounding.
type Charges struct {
	NettTotal decimal.Decimal
	VATAmount decimal.Decimal
	LineTotal decimal.Decimal
}

// Strategy is a pluggable pricing algorithm selected per agreement.
// Implementations are pure: Price reads only its inputs, performs no I/O and
// holds no mutable state, so unbounded parallel calls are safe.
type Strategy interface {
	Name() string
	// Validate checks the strategy-specific rule keys once per agreement.
	Validate(ag agreement.Agreement) error
	// Price computes the charges for one raw line under the agreement.
	Price(fields map[string]string, ag agreement.Agreement) (Charges, error)
}

// Registry maps strategy names to implementations. An empty strategy name
// resolves to the standard strategy.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	if r == nil || s == nil || s.Name() == "" {
		return
	}
	r.mu.Lock()
	r.strategies[s.Name()] = s
	r.mu.Unlock()
}

// Resolve returns the strategy for a name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if name == "" {
		name = StrategyStandard
	}
	r.mu.RLock()
	s := r.strategies[name]
	r.mu.RUnlock()
	if s == nil {
		return nil, &UnsupportedStrategyError{Name: name}
	}
	return s, nil
}

// Names returns the registered strategy names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// finishCharges applies the rounding contract shared by all strategies:
// nett is rounded half away from zero to minor units, VAT is computed on the
// rounded nett and rounded the same way, and the line total is their exact
// sum so the additivity invariant survives rounding.
func finishCharges(nett decimal.Decimal, vatRate decimal.Decimal) Charges {
	nettRounded := nett.Round(chargeScale)
	vat := nettRounded.Mul(vatRate).Round(chargeScale)
	return Charges{
		NettTotal: nettRounded,
		VATAmount: vat,
		LineTotal: nettRounded.Add(vat),
	}
}
