package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	agreementapp "invoicing-cloud/internal/agreement/application"
	agreement "invoicing-cloud/internal/agreement/domain"
	agreementpg "invoicing-cloud/internal/agreement/infrastructure/postgres"
	assemblyapp "invoicing-cloud/internal/assembly/application"
	assemblyevents "invoicing-cloud/internal/assembly/application/events"
	assemblymem "invoicing-cloud/internal/assembly/infrastructure/memory"
	assemblypg "invoicing-cloud/internal/assembly/infrastructure/postgres"
	"invoicing-cloud/internal/audit"
	deliveryapp "invoicing-cloud/internal/delivery/application"
	deliveryevents "invoicing-cloud/internal/delivery/application/events"
	"invoicing-cloud/internal/eventing"
	eventingpg "invoicing-cloud/internal/eventing/infrastructure/postgres"
	ingestapp "invoicing-cloud/internal/ingest/application"
	ingestevents "invoicing-cloud/internal/ingest/application/events"
	parserapp "invoicing-cloud/internal/parser/application"
	parserevents "invoicing-cloud/internal/parser/application/events"
	pricingapp "invoicing-cloud/internal/pricing/application"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
	pricing "invoicing-cloud/internal/pricing/domain"
	pricingpg "invoicing-cloud/internal/pricing/infrastructure/postgres"
	pricingifc "invoicing-cloud/internal/pricing/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var pipelineTables = []string{
	"agreements",
	"enriched_invoice_lines",
	"invoices",
	"event_outbox",
	"processed_events",
	"dead_letter_events",
	"audit_logs",
}

// openTestDB connects to the database named by PG_DSN, applies the schema
// shipped under migrations/ and clears the pipeline tables. Tests using it
// skip when PG_DSN is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	for _, table := range pipelineTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clear %s: %v", table, err)
		}
	}
	return db
}

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

func (c *recordingChannel) deliveries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestInvoicePipelineClosedLoop_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	storageRoot := t.TempDir()

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(ingestevents.FileStored{})
	registry.Register(parserevents.CarrierLineExtracted{})
	registry.Register(pricingevents.InvoiceLinePriced{})
	registry.Register(assemblyevents.InvoiceAssembled{})
	registry.Register(assemblyevents.BucketExpired{})
	registry.Register(deliveryevents.InvoiceRendered{})
	registry.Register(deliveryevents.InvoiceSent{})

	outboxStore := eventingpg.NewOutboxStore(db)
	dlqStore := eventingpg.NewDLQStore(db)
	processed := eventingpg.NewProcessedStore(db)
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, bus)

	agreements := agreementpg.NewRepository(db)
	err := agreements.Insert(ctx, agreement.Agreement{
		CustomerID: agreement.StandardCustomerID,
		Version:    1,
		Strategy:   pricing.StrategyStandard,
		Multiplier: decimal.RequireFromString("1.15"),
		VATRate:    decimal.RequireFromString("0.21"),
		Currency:   "EUR",
		Rules:      map[string]any{"base_charge_column": "Weight Charge"},
		ValidFrom:  time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed standard agreement: %v", err)
	}
	resolver, err := agreementapp.NewResolver(agreements)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	strategies := pricing.NewRegistry()
	strategies.Register(pricing.NewStandardStrategy(pricing.NumericLenient))
	engine, err := pricingapp.NewEngine(strategies)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	enrichedLines, err := pricingpg.NewEnrichedLineRepository(db)
	if err != nil {
		t.Fatalf("new enriched line repository: %v", err)
	}
	consumer, err := pricingifc.NewLineConsumer(resolver, engine, publisher, nil,
		pricingifc.WithEnrichedLineStore(enrichedLines))
	if err != nil {
		t.Fatalf("new line consumer: %v", err)
	}

	aggregator, err := assemblyapp.NewAggregator(assemblymem.NewBucketStore(), publisher, nil)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	invoices, err := assemblypg.NewInvoiceRepository(db)
	if err != nil {
		t.Fatalf("new invoice repository: %v", err)
	}
	renderer, err := deliveryapp.NewRenderer(publisher, storageRoot, nil,
		deliveryapp.WithInvoiceStore(invoices))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	channel := &recordingChannel{}
	sender, err := deliveryapp.NewSender(publisher, channel, nil)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	parser, err := parserapp.NewService(publisher, nil)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	ingestor, err := ingestapp.NewService(publisher, nil, ingestapp.WithStorageRoot(storageRoot))
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}

	eventing.Subscribe(bus, eventing.EventTypeOf[ingestevents.FileStored](), "parser", parser.HandleFileStored, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[parserevents.CarrierLineExtracted](), "pricing", consumer.HandleCarrierLineExtracted, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[pricingevents.InvoiceLinePriced](), "assembly", aggregator.HandleInvoiceLinePriced, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[assemblyevents.InvoiceAssembled](), "renderer", renderer.HandleInvoiceAssembled, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[deliveryevents.InvoiceRendered](), "sender", sender.HandleInvoiceRendered, processed)

	csv := "Billing Account,Weight Charge,Fuel Charge,Security Charge\n" +
		"ACME-001,8.36,1.27,0.03\n" +
		"ACME-001,4.00,0.00,0.00\n"
	path := filepath.Join(storageRoot, "invoice.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	correlationID, err := ingestor.Store(ctx, path, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	// Drain anything the in-line dispatch left behind.
	for i := 0; i < 10; i++ {
		if err := dispatcher.Dispatch(ctx, 64); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	invoice, err := invoices.FindByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if got := invoice.NettTotal.StringFixed(2); got != "15.71" {
		t.Fatalf("nett total: %s", got)
	}
	if got := invoice.VATTotal.StringFixed(2); got != "3.30" {
		t.Fatalf("vat total: %s", got)
	}
	if got := invoice.Total.StringFixed(2); got != "19.01" {
		t.Fatalf("total: %s", got)
	}
	if invoice.Currency != "EUR" || len(invoice.Lines) != 2 {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}

	lines, err := enrichedLines.ListByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("list enriched lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 enriched lines, got %d", len(lines))
	}
	if got := lines[0].NettTotal.StringFixed(2); got != "11.11" {
		t.Fatalf("first line nett: %s", got)
	}
	if lines[0].Fields["Billing Account"] != "ACME-001" {
		t.Fatalf("raw fields lost: %v", lines[0].Fields)
	}

	if channel.deliveries() != 1 {
		t.Fatalf("expected 1 delivery, got %d", channel.deliveries())
	}

	pending, err := outboxStore.ListPending(ctx, 100)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d pending records", len(pending))
	}

	var parserRuns int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_events WHERE consumer_name = 'parser'").Scan(&parserRuns)
	if err != nil {
		t.Fatalf("count processed: %v", err)
	}
	if parserRuns != 1 {
		t.Fatalf("parser processed %d events, want 1", parserRuns)
	}

	// Redelivering the assembled invoice must not create a second row.
	duplicate := invoice
	duplicate.ID = "other-id"
	if err := invoices.Save(ctx, duplicate); err != nil {
		t.Fatalf("save duplicate: %v", err)
	}
	again, err := invoices.FindByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("find invoice again: %v", err)
	}
	if again.ID != invoice.ID {
		t.Fatalf("duplicate save replaced invoice: %s", again.ID)
	}
}

func TestAgreementRepositoryResolvesLatestVersion_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	repo := agreementpg.NewRepository(db)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for version, daysBack := range map[int]int{1: 30, 2: 10} {
		err := repo.Insert(ctx, agreement.Agreement{
			CustomerID: "cust-9",
			Version:    version,
			Strategy:   pricing.StrategyStandard,
			Multiplier: decimal.RequireFromString("1.10"),
			VATRate:    decimal.RequireFromString("0.21"),
			Currency:   "EUR",
			Rules:      map[string]any{"base_charge_column": "Weight Charge"},
			ValidFrom:  base.AddDate(0, 0, -daysBack),
		})
		if err != nil {
			t.Fatalf("insert v%d: %v", version, err)
		}
	}

	resolver, err := agreementapp.NewResolver(repo)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	resolved, err := resolver.Resolve(ctx, "cust-9", base)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Version != 2 || resolved.Type != agreement.TypeCustom {
		t.Fatalf("resolved %+v, want version 2 custom", resolved)
	}
	if !resolved.Multiplier.Equal(decimal.RequireFromString("1.10")) {
		t.Fatalf("multiplier round-trip: %s", resolved.Multiplier)
	}
	if resolved.Rules["base_charge_column"] != "Weight Charge" {
		t.Fatalf("rules round-trip: %v", resolved.Rules)
	}

	// No row for an unknown customer and no standard agreement seeded.
	if _, err := resolver.Resolve(ctx, "cust-unknown", base); !agreement.IsMissing(err) {
		t.Fatalf("expected missing agreement, got %v", err)
	}
}

func TestEventStoresRecordFailuresAndIdempotency_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	processed := eventingpg.NewProcessedStore(db)
	seen, err := processed.HasProcessed(ctx, "evt-1", "pricing")
	if err != nil {
		t.Fatalf("has processed: %v", err)
	}
	if seen {
		t.Fatal("fresh event reported processed")
	}
	if err := processed.MarkProcessed(ctx, "evt-1", "pricing"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := processed.MarkProcessed(ctx, "evt-1", "pricing"); err != nil {
		t.Fatalf("mark processed twice: %v", err)
	}
	seen, err = processed.HasProcessed(ctx, "evt-1", "pricing")
	if err != nil {
		t.Fatalf("has processed after mark: %v", err)
	}
	if !seen {
		t.Fatal("marked event not reported processed")
	}

	dlq := eventingpg.NewDLQStore(db)
	env, err := eventing.BuildEnvelope(parserevents.CarrierLineExtracted{CorrelationID: "corr-dlq"}, eventing.Meta{EventID: "evt-dlq"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	cause := errors.New("handler broke")
	if err := dlq.RecordFailure(ctx, env, cause); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := dlq.RecordFailure(ctx, env, cause); err != nil {
		t.Fatalf("record failure again: %v", err)
	}
	var attempts int
	err = db.QueryRowContext(ctx,
		"SELECT attempts FROM dead_letter_events WHERE event_id = $1", "evt-dlq").Scan(&attempts)
	if err != nil {
		t.Fatalf("load dlq row: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("dlq attempts %d, want 2", attempts)
	}

	auditLog := audit.NewRepository(db)
	err = auditLog.Log(ctx, audit.Entry{
		Actor:        "user-1",
		Role:         "operator",
		Action:       "invoice_file.upload",
		ResourceType: "invoice_file",
		ResourceID:   "corr-audit",
	})
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	var auditRows int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_logs WHERE action = 'invoice_file.upload'").Scan(&auditRows)
	if err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditRows != 1 {
		t.Fatalf("audit rows %d, want 1", auditRows)
	}
}
