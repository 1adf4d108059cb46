package e2e

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	agreementapp "invoicing-cloud/internal/agreement/application"
	agreement "invoicing-cloud/internal/agreement/domain"
	agreementmem "invoicing-cloud/internal/agreement/infrastructure/memory"
	assemblyapp "invoicing-cloud/internal/assembly/application"
	assemblyevents "invoicing-cloud/internal/assembly/application/events"
	assemblymem "invoicing-cloud/internal/assembly/infrastructure/memory"
	deliveryapp "invoicing-cloud/internal/delivery/application"
	deliveryevents "invoicing-cloud/internal/delivery/application/events"
	"invoicing-cloud/internal/eventing"
	ingestapp "invoicing-cloud/internal/ingest/application"
	ingestevents "invoicing-cloud/internal/ingest/application/events"
	parserapp "invoicing-cloud/internal/parser/application"
	parserevents "invoicing-cloud/internal/parser/application/events"
	pricingapp "invoicing-cloud/internal/pricing/application"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
	pricing "invoicing-cloud/internal/pricing/domain"
	pricingifc "invoicing-cloud/internal/pricing/interfaces"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent [][2]string
}

func (c *recordingChannel) Name() string { return "test" }

func (c *recordingChannel) Send(ctx context.Context, invoiceID, documentPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, [2]string{invoiceID, documentPath})
	return nil
}

type pipeline struct {
	ingest   *ingestapp.Service
	invoices *assemblymem.InvoiceStore
	channel  *recordingChannel
}

// buildPipeline wires the whole in-memory chain the way the server binary
// does: ingest, parser, pricing, assembly, rendering and delivery all hang
// off one synchronous bus, so a Store call runs the file to completion.
func buildPipeline(t *testing.T, storageRoot string) *pipeline {
	t.Helper()

	bus := eventing.NewInMemoryBus()

	agreements := agreementmem.NewRepository()
	err := agreements.Put(agreement.Agreement{
		CustomerID: agreement.StandardCustomerID,
		Version:    1,
		Strategy:   pricing.StrategyStandard,
		Multiplier: decimal.RequireFromString("1.15"),
		VATRate:    decimal.RequireFromString("0.21"),
		Currency:   "EUR",
		Rules:      map[string]any{"base_charge_column": "Weight Charge"},
		ValidFrom:  time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed agreement: %v", err)
	}
	resolver, err := agreementapp.NewResolver(agreements)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	registry := pricing.NewRegistry()
	registry.Register(pricing.NewStandardStrategy(pricing.NumericLenient))
	engine, err := pricingapp.NewEngine(registry)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	consumer, err := pricingifc.NewLineConsumer(resolver, engine, bus, nil)
	if err != nil {
		t.Fatalf("new line consumer: %v", err)
	}

	aggregator, err := assemblyapp.NewAggregator(assemblymem.NewBucketStore(), bus, nil)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}

	invoices := assemblymem.NewInvoiceStore()
	renderer, err := deliveryapp.NewRenderer(bus, storageRoot, nil, deliveryapp.WithInvoiceStore(invoices))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	channel := &recordingChannel{}
	sender, err := deliveryapp.NewSender(bus, channel, nil)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	parser, err := parserapp.NewService(bus, nil)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	ingestor, err := ingestapp.NewService(bus, nil, ingestapp.WithStorageRoot(storageRoot))
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}

	bus.Subscribe(eventing.EventTypeOf[ingestevents.FileStored](), parser.HandleFileStored)
	bus.Subscribe(eventing.EventTypeOf[parserevents.CarrierLineExtracted](), consumer.HandleCarrierLineExtracted)
	bus.Subscribe(eventing.EventTypeOf[pricingevents.InvoiceLinePriced](), aggregator.HandleInvoiceLinePriced)
	bus.Subscribe(eventing.EventTypeOf[assemblyevents.InvoiceAssembled](), renderer.HandleInvoiceAssembled)
	bus.Subscribe(eventing.EventTypeOf[deliveryevents.InvoiceRendered](), sender.HandleInvoiceRendered)

	return &pipeline{ingest: ingestor, invoices: invoices, channel: channel}
}

func TestPipelineCSVToDeliveredInvoice(t *testing.T) {
	root := t.TempDir()
	p := buildPipeline(t, root)

	csv := "Billing Account,Weight Charge,Fuel Charge,Security Charge\n" +
		"ACME-001,8.36,1.27,0.03\n" +
		"ACME-001,4.00,0.00,0.00\n"
	path := filepath.Join(root, "invoice.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	correlationID, err := p.ingest.Store(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	invoice, err := p.invoices.FindByCorrelation(context.Background(), correlationID)
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if len(invoice.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(invoice.Lines))
	}

	// Line 1: (8.36+1.27+0.03)*1.15 = 11.109 -> 11.11 nett, 2.33 VAT.
	// Line 2: 4.00*1.15 = 4.60 nett, 0.97 VAT.
	if got := invoice.NettTotal.StringFixed(2); got != "15.71" {
		t.Fatalf("nett total: %s", got)
	}
	if got := invoice.VATTotal.StringFixed(2); got != "3.30" {
		t.Fatalf("vat total: %s", got)
	}
	if got := invoice.Total.StringFixed(2); got != "19.01" {
		t.Fatalf("total: %s", got)
	}
	if invoice.Currency != "EUR" {
		t.Fatalf("currency: %s", invoice.Currency)
	}

	document := filepath.Join(root, "invoices", invoice.ID+".pdf")
	if _, err := os.Stat(document); err != nil {
		t.Fatalf("invoice document missing: %v", err)
	}

	if len(p.channel.sent) != 1 || p.channel.sent[0][0] != invoice.ID {
		t.Fatalf("delivery: %v", p.channel.sent)
	}
}

func TestPipelineOneInvoicePerFile(t *testing.T) {
	root := t.TempDir()
	p := buildPipeline(t, root)

	for i := 0; i < 2; i++ {
		path := filepath.Join(root, "batch.csv")
		if err := os.WriteFile(path, []byte("Billing Account,Weight Charge\nACME-001,1.00\n"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := p.ingest.Store(context.Background(), path, nil); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	// Each upload mints its own correlation id and therefore its own invoice.
	if len(p.channel.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(p.channel.sent))
	}
	if p.channel.sent[0][0] == p.channel.sent[1][0] {
		t.Fatal("two uploads shared an invoice id")
	}
}

func TestPipelineMissingAgreementAbortsFile(t *testing.T) {
	root := t.TempDir()

	bus := eventing.NewInMemoryBus()
	resolver, err := agreementapp.NewResolver(agreementmem.NewRepository())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	registry := pricing.NewRegistry()
	registry.Register(pricing.NewStandardStrategy(pricing.NumericLenient))
	engine, err := pricingapp.NewEngine(registry)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	consumer, err := pricingifc.NewLineConsumer(resolver, engine, bus, nil)
	if err != nil {
		t.Fatalf("new line consumer: %v", err)
	}
	parser, err := parserapp.NewService(bus, nil)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	ingestor, err := ingestapp.NewService(bus, nil, ingestapp.WithStorageRoot(root))
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	bus.Subscribe(eventing.EventTypeOf[ingestevents.FileStored](), parser.HandleFileStored)
	bus.Subscribe(eventing.EventTypeOf[parserevents.CarrierLineExtracted](), consumer.HandleCarrierLineExtracted)

	path := filepath.Join(root, "invoice.csv")
	if err := os.WriteFile(path, []byte("Billing Account,Weight Charge\nACME-001,1.00\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err = ingestor.Store(context.Background(), path, nil)
	if !agreement.IsMissing(err) {
		t.Fatalf("expected missing-agreement error, got %v", err)
	}
}
