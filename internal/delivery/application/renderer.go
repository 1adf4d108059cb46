package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	assemblyevents "invoicing-cloud/internal/assembly/application/events"
	assembly "invoicing-cloud/internal/assembly/domain"
	"invoicing-cloud/internal/assembly/interfaces"
	"invoicing-cloud/internal/delivery/application/events"
	"invoicing-cloud/internal/eventing"
	"invoicing-cloud/internal/observability/metrics"
)

// FormatPDF is the default invoice document format.
const FormatPDF = "pdf"

// InvoiceStore persists assembled invoices for status lookups.
type InvoiceStore interface {
	Save(ctx context.Context, invoice assembly.Invoice) error
}

// Publisher is the outbound event contract.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Renderer turns assembled invoices into documents on disk.
type Renderer struct {
	bus         Publisher
	store       InvoiceStore
	logger      *zap.SugaredLogger
	storageRoot string
	now         func() time.Time
}

// RendererOption configures the renderer.
type RendererOption func(*Renderer)

// WithInvoiceStore enables invoice persistence before rendering.
func WithInvoiceStore(store InvoiceStore) RendererOption {
	return func(r *Renderer) {
		r.store = store
	}
}

// WithRenderClock overrides the clock.
func WithRenderClock(now func() time.Time) RendererOption {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer constructs a renderer writing documents under storageRoot.
func NewRenderer(bus Publisher, storageRoot string, logger *zap.SugaredLogger, opts ...RendererOption) (*Renderer, error) {
	if bus == nil {
		return nil, errors.New("renderer: nil bus")
	}
	if storageRoot == "" {
		storageRoot = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	renderer := &Renderer{
		bus:         bus,
		logger:      logger,
		storageRoot: storageRoot,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(renderer)
	}
	return renderer, nil
}

// HandleInvoiceAssembled persists the invoice, renders its PDF and announces
// the document.
func (r *Renderer) HandleInvoiceAssembled(ctx context.Context, event any) error {
	evt, ok := event.(assemblyevents.InvoiceAssembled)
	if !ok {
		return eventing.ErrInvalidEventType
	}

	if r.store != nil {
		if err := r.store.Save(ctx, evt.Invoice); err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
	}

	start := r.now()
	document, err := interfaces.BuildInvoicePDF(evt.Invoice)
	if err != nil {
		metrics.ObserveInvoiceExport(FormatPDF, metrics.ResultError, r.now().Sub(start))
		return fmt.Errorf("render invoice %s: %w", evt.Invoice.ID, err)
	}

	dir := filepath.Join(r.storageRoot, "invoices")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create invoice dir: %w", err)
	}
	path := filepath.Join(dir, evt.Invoice.ID+".pdf")
	if err := os.WriteFile(path, document, 0o644); err != nil {
		metrics.ObserveInvoiceExport(FormatPDF, metrics.ResultError, r.now().Sub(start))
		return fmt.Errorf("write invoice document: %w", err)
	}
	metrics.ObserveInvoiceExport(FormatPDF, metrics.ResultSuccess, r.now().Sub(start))

	r.logger.Infow("invoice rendered",
		"correlation_id", evt.CorrelationID,
		"invoice_id", evt.Invoice.ID,
		"path", path,
	)
	return r.bus.Publish(ctx, events.InvoiceRendered{
		CorrelationID: evt.CorrelationID,
		InvoiceID:     evt.Invoice.ID,
		DocumentPath:  path,
		Format:        FormatPDF,
		OccurredAt:    r.now().UTC(),
	})
}
