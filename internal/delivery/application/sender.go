package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"invoicing-cloud/internal/delivery/application/events"
	"invoicing-cloud/internal/eventing"
	"invoicing-cloud/internal/observability/metrics"
)

// Channel hands a rendered invoice document to its recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, invoiceID, documentPath string) error
}

// Sender delivers rendered invoices over a configured channel.
type Sender struct {
	bus     Publisher
	channel Channel
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// SenderOption configures the sender.
type SenderOption func(*Sender)

// WithSendClock overrides the clock.
func WithSendClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSender constructs a sender.
func NewSender(bus Publisher, channel Channel, logger *zap.SugaredLogger, opts ...SenderOption) (*Sender, error) {
	if bus == nil {
		return nil, errors.New("sender: nil bus")
	}
	if channel == nil {
		return nil, errors.New("sender: nil channel")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	sender := &Sender{bus: bus, channel: channel, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(sender)
	}
	return sender, nil
}

// HandleInvoiceRendered delivers the document and announces the send.
func (s *Sender) HandleInvoiceRendered(ctx context.Context, event any) error {
	evt, ok := event.(events.InvoiceRendered)
	if !ok {
		return eventing.ErrInvalidEventType
	}

	if err := s.channel.Send(ctx, evt.InvoiceID, evt.DocumentPath); err != nil {
		metrics.IncInvoiceSent(metrics.ResultError)
		return fmt.Errorf("send invoice %s: %w", evt.InvoiceID, err)
	}
	metrics.IncInvoiceSent(metrics.ResultSuccess)

	s.logger.Infow("invoice sent",
		"correlation_id", evt.CorrelationID,
		"invoice_id", evt.InvoiceID,
		"channel", s.channel.Name(),
	)
	return s.bus.Publish(ctx, events.InvoiceSent{
		CorrelationID: evt.CorrelationID,
		InvoiceID:     evt.InvoiceID,
		Channel:       s.channel.Name(),
		OccurredAt:    s.now().UTC(),
	})
}
