// Package cmd - process command
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

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
	"invoicing-cloud/internal/logging"
	"invoicing-cloud/internal/notify"
	parserapp "invoicing-cloud/internal/parser/application"
	parserevents "invoicing-cloud/internal/parser/application/events"
	pricingapp "invoicing-cloud/internal/pricing/application"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
	pricing "invoicing-cloud/internal/pricing/domain"
	pricinginterfaces "invoicing-cloud/internal/pricing/interfaces"
)

var (
	processStrategy       string
	processMultiplier     string
	processVATRate        string
	processCurrency       string
	processRules          string
	processCustomerColumn string
	processNumericPolicy  string
	processOutputDir      string
)

// processCmd runs a single carrier file through the whole pipeline in
// process, without a database, and prints the assembled invoice.
var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Price one carrier file and print the assembled invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processStrategy, "strategy", "standard", "pricing strategy (standard, tiered, volume_and_distance)")
	processCmd.Flags().StringVar(&processMultiplier, "multiplier", "1", "agreement price multiplier")
	processCmd.Flags().StringVar(&processVATRate, "vat-rate", "0.15", "agreement VAT rate")
	processCmd.Flags().StringVar(&processCurrency, "currency", "EUR", "invoice currency")
	processCmd.Flags().StringVar(&processRules, "rules", `{"base_charge_column":"Weight Charge"}`, "agreement ruleset as JSON")
	processCmd.Flags().StringVar(&processCustomerColumn, "customer-column", "Billing Account", "column naming the billed customer")
	processCmd.Flags().StringVar(&processNumericPolicy, "numeric-policy", "lenient", "numeric parse policy (lenient, strict)")
	processCmd.Flags().StringVarP(&processOutputDir, "output", "o", os.TempDir(), "directory for rendered documents")
}

func runProcess(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop().Sugar()
	if verbose {
		logger = logging.NewDefault().Sugar()
	}

	multiplier, err := decimal.NewFromString(processMultiplier)
	if err != nil {
		return fmt.Errorf("invalid multiplier: %w", err)
	}
	vatRate, err := decimal.NewFromString(processVATRate)
	if err != nil {
		return fmt.Errorf("invalid vat rate: %w", err)
	}
	var rules map[string]any
	if err := json.Unmarshal([]byte(processRules), &rules); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	policy, ok := pricing.ParseNumericPolicy(processNumericPolicy)
	if !ok {
		return fmt.Errorf("invalid numeric policy %q", processNumericPolicy)
	}

	agreements := agreementmem.NewRepository()
	if err := agreements.Put(agreement.Agreement{
		CustomerID: agreement.StandardCustomerID,
		Version:    1,
		Strategy:   processStrategy,
		Multiplier: multiplier,
		VATRate:    vatRate,
		Currency:   processCurrency,
		Rules:      rules,
		ValidFrom:  time.Now().UTC().Add(-time.Hour),
		Type:       agreement.TypeStandard,
	}); err != nil {
		return err
	}
	resolver, err := agreementapp.NewResolver(agreements)
	if err != nil {
		return err
	}

	strategies := pricing.NewRegistry()
	strategies.Register(pricing.NewStandardStrategy(policy))
	strategies.Register(pricing.NewTieredStrategy(policy))
	strategies.Register(pricing.NewVolumeAndDistanceStrategy(policy))
	engine, err := pricingapp.NewEngine(strategies, pricingapp.WithDefaultCurrency(processCurrency))
	if err != nil {
		return err
	}

	bus := eventing.NewInMemoryBus()
	publisher := eventing.NewPublisher(nil, nil, bus)

	lineConsumer, err := pricinginterfaces.NewLineConsumer(resolver, engine, publisher, logger,
		pricinginterfaces.WithCustomerColumn(processCustomerColumn))
	if err != nil {
		return err
	}

	invoiceStore := assemblymem.NewInvoiceStore()
	aggregator, err := assemblyapp.NewAggregator(assemblymem.NewBucketStore(), publisher, logger)
	if err != nil {
		return err
	}
	renderer, err := deliveryapp.NewRenderer(publisher, processOutputDir, logger,
		deliveryapp.WithInvoiceStore(invoiceStore))
	if err != nil {
		return err
	}
	channel, err := notify.NewDocumentChannel(notify.NewLogChannel(logger), nil)
	if err != nil {
		return err
	}
	sender, err := deliveryapp.NewSender(publisher, channel, logger)
	if err != nil {
		return err
	}

	parserService, err := parserapp.NewService(publisher, logger)
	if err != nil {
		return err
	}
	ingestService, err := ingestapp.NewService(publisher, logger,
		ingestapp.WithStorageRoot(processOutputDir))
	if err != nil {
		return err
	}

	eventing.Subscribe(bus, eventing.EventTypeOf[ingestevents.FileStored](), "parser", parserService.HandleFileStored, nil)
	eventing.Subscribe(bus, eventing.EventTypeOf[parserevents.CarrierLineExtracted](), "pricing", lineConsumer.HandleCarrierLineExtracted, nil)
	eventing.Subscribe(bus, eventing.EventTypeOf[pricingevents.InvoiceLinePriced](), "assembly", aggregator.HandleInvoiceLinePriced, nil)
	eventing.Subscribe(bus, eventing.EventTypeOf[assemblyevents.InvoiceAssembled](), "renderer", renderer.HandleInvoiceAssembled, nil)
	eventing.Subscribe(bus, eventing.EventTypeOf[deliveryevents.InvoiceRendered](), "sender", sender.HandleInvoiceRendered, nil)

	ctx := context.Background()
	correlationID, err := ingestService.Store(ctx, args[0], nil)
	if err != nil {
		return err
	}

	invoice, err := invoiceStore.FindByCorrelation(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("no invoice assembled for %s: %w", correlationID, err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(invoice)
}
