package interfaces

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	agreement "invoicing-cloud/internal/agreement/domain"
	"invoicing-cloud/internal/eventing"
	"invoicing-cloud/internal/observability/metrics"
	parserevents "invoicing-cloud/internal/parser/application/events"
	pricingapp "invoicing-cloud/internal/pricing/application"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
	pricing "invoicing-cloud/internal/pricing/domain"
)

// defaultCustomerColumn is the carrier column naming the billed customer.
const defaultCustomerColumn = "Billing Account"

// AgreementResolver yields the effective agreement for a customer.
type AgreementResolver interface {
	ResolveForInvoice(ctx context.Context, customerID, invoiceID string, now time.Time) (agreement.Agreement, error)
}

// EnrichedLineStore persists priced lines for audit and reporting.
type EnrichedLineStore interface {
	Save(ctx context.Context, line pricing.PricedLine, agreementType, strategy string) error
}

// Publisher is the outbound event contract.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// LineConsumer prices extracted carrier lines. The agreement is resolved
// once per correlation id and pinned for the rest of the batch, so a version
// boundary crossing mid-file cannot split a batch across agreements.
type LineConsumer struct {
	resolver       AgreementResolver
	engine         *pricingapp.Engine
	bus            Publisher
	store          EnrichedLineStore
	logger         *zap.SugaredLogger
	customerColumn string
	now            func() time.Time

	mu     sync.Mutex
	pinned map[string]agreement.Agreement
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*LineConsumer)

// WithCustomerColumn overrides the column naming the billed customer.
func WithCustomerColumn(column string) ConsumerOption {
	return func(c *LineConsumer) {
		if column != "" {
			c.customerColumn = column
		}
	}
}

// WithEnrichedLineStore enables persistence of priced lines.
func WithEnrichedLineStore(store EnrichedLineStore) ConsumerOption {
	return func(c *LineConsumer) {
		c.store = store
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) ConsumerOption {
	return func(c *LineConsumer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLineConsumer constructs a consumer.
func NewLineConsumer(resolver AgreementResolver, engine *pricingapp.Engine, bus Publisher, logger *zap.SugaredLogger, opts ...ConsumerOption) (*LineConsumer, error) {
	if resolver == nil {
		return nil, errors.New("line consumer: nil resolver")
	}
	if engine == nil {
		return nil, errors.New("line consumer: nil engine")
	}
	if bus == nil {
		return nil, errors.New("line consumer: nil bus")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	consumer := &LineConsumer{
		resolver:       resolver,
		engine:         engine,
		bus:            bus,
		logger:         logger,
		customerColumn: defaultCustomerColumn,
		now:            time.Now,
		pinned:         make(map[string]agreement.Agreement),
	}
	for _, opt := range opts {
		opt(consumer)
	}
	return consumer, nil
}

// HandleCarrierLineExtracted prices one line and publishes the result.
func (c *LineConsumer) HandleCarrierLineExtracted(ctx context.Context, event any) error {
	evt, ok := event.(parserevents.CarrierLineExtracted)
	if !ok {
		return eventing.ErrInvalidEventType
	}

	start := c.now()
	ag, err := c.agreementFor(ctx, evt)
	if err != nil {
		if agreement.IsMissing(err) {
			metrics.IncAgreementMissing()
			c.logger.Errorw("no effective agreement, aborting batch",
				"correlation_id", evt.CorrelationID,
				"customer", evt.Fields[c.customerColumn],
			)
		}
		return err
	}

	line := pricing.ParsedLine{
		CorrelationID: evt.CorrelationID,
		Fields:        evt.Fields,
		Position:      evt.Position,
		IsTerminal:    evt.IsTerminal,
	}
	priced, err := c.engine.PriceLine(line, ag)
	if err != nil {
		metrics.ObserveLinePriced(metrics.ResultError, ag.Strategy, c.now().Sub(start))
		c.forget(evt.CorrelationID)
		return err
	}
	metrics.ObserveLinePriced(metrics.ResultSuccess, ag.Strategy, c.now().Sub(start))

	if c.store != nil {
		if err := c.store.Save(ctx, priced, string(ag.Type), ag.Strategy); err != nil {
			c.forget(evt.CorrelationID)
			return err
		}
	}

	c.logger.Debugw("line priced",
		"correlation_id", evt.CorrelationID,
		"position", evt.Position,
		"agreement_version", priced.AgreementVersion,
		"line_total", priced.LineTotal.String(),
	)

	if evt.IsTerminal {
		c.forget(evt.CorrelationID)
	}

	return c.bus.Publish(ctx, pricingevents.InvoiceLinePriced{
		CorrelationID: evt.CorrelationID,
		Line:          priced,
		AgreementType: string(ag.Type),
		Strategy:      ag.Strategy,
		OccurredAt:    c.now().UTC(),
	})
}

// agreementFor resolves and pins the agreement for a batch. The first line
// observed for a correlation id decides the version used for the whole file.
func (c *LineConsumer) agreementFor(ctx context.Context, evt parserevents.CarrierLineExtracted) (agreement.Agreement, error) {
	c.mu.Lock()
	if ag, ok := c.pinned[evt.CorrelationID]; ok {
		c.mu.Unlock()
		return ag, nil
	}
	c.mu.Unlock()

	customerID := evt.Fields[c.customerColumn]
	ag, err := c.resolver.ResolveForInvoice(ctx, customerID, evt.CorrelationID, c.now())
	if err != nil {
		return agreement.Agreement{}, err
	}

	c.mu.Lock()
	// Another writer may have pinned in the meantime; honor the first pin so
	// the batch stays on one version.
	if existing, ok := c.pinned[evt.CorrelationID]; ok {
		ag = existing
	} else {
		c.pinned[evt.CorrelationID] = ag
	}
	c.mu.Unlock()
	return ag, nil
}

func (c *LineConsumer) forget(correlationID string) {
	c.mu.Lock()
	delete(c.pinned, correlationID)
	c.mu.Unlock()
}
