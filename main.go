package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	agreementapp "invoicing-cloud/internal/agreement/application"
	agreement "invoicing-cloud/internal/agreement/domain"
	agreementmem "invoicing-cloud/internal/agreement/infrastructure/memory"
	agreementpg "invoicing-cloud/internal/agreement/infrastructure/postgres"
	apihttp "invoicing-cloud/internal/api/http"
	assemblyapp "invoicing-cloud/internal/assembly/application"
	assemblyevents "invoicing-cloud/internal/assembly/application/events"
	assemblymem "invoicing-cloud/internal/assembly/infrastructure/memory"
	assemblypg "invoicing-cloud/internal/assembly/infrastructure/postgres"
	"invoicing-cloud/internal/audit"
	"invoicing-cloud/internal/auth"
	"invoicing-cloud/internal/config"
	deliveryapp "invoicing-cloud/internal/delivery/application"
	deliveryevents "invoicing-cloud/internal/delivery/application/events"
	"invoicing-cloud/internal/eventing"
	eventingpg "invoicing-cloud/internal/eventing/infrastructure/postgres"
	ingestapp "invoicing-cloud/internal/ingest/application"
	ingestevents "invoicing-cloud/internal/ingest/application/events"
	"invoicing-cloud/internal/logging"
	"invoicing-cloud/internal/notify"
	"invoicing-cloud/internal/observability/metrics"
	parserapp "invoicing-cloud/internal/parser/application"
	parserevents "invoicing-cloud/internal/parser/application/events"
	pricingapp "invoicing-cloud/internal/pricing/application"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
	pricing "invoicing-cloud/internal/pricing/domain"
	pricingpg "invoicing-cloud/internal/pricing/infrastructure/postgres"
	pricinginterfaces "invoicing-cloud/internal/pricing/interfaces"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	zl := logging.NewDefault()
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("db open error", "error", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalw("db ping error", "error", err)
		}
	} else {
		logger.Warnw("no database configured, running with in-memory stores")
	}

	metrics.Init(db)

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(ingestevents.FileStored{})
	registry.Register(parserevents.CarrierLineExtracted{})
	registry.Register(pricingevents.InvoiceLinePriced{})
	registry.Register(assemblyevents.InvoiceAssembled{})
	registry.Register(assemblyevents.BucketExpired{})
	registry.Register(deliveryevents.InvoiceRendered{})
	registry.Register(deliveryevents.InvoiceSent{})

	var (
		publisher  *eventing.Publisher
		dispatcher *eventing.Dispatcher
		processed  eventing.ProcessedStore
	)
	if db != nil {
		outboxStore := eventingpg.NewOutboxStore(db)
		dlqStore := eventingpg.NewDLQStore(db)
		processed = eventingpg.NewProcessedStore(db)
		dispatcher = eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)
		publisher = eventing.NewPublisher(outboxStore, dispatcher, bus)
	} else {
		publisher = eventing.NewPublisher(nil, nil, bus)
	}

	var agreements agreement.Repository
	if db != nil {
		pgOpts := []agreementpg.Option{agreementpg.WithStandardCustomerID(cfg.StandardCustomerID)}
		if cfg.PercentMultipliers {
			pgOpts = append(pgOpts, agreementpg.WithPercentMultipliers())
		}
		agreements = agreementpg.NewRepository(db, pgOpts...)
	} else {
		agreements = agreementmem.NewRepository(agreementmem.WithStandardCustomerID(cfg.StandardCustomerID))
	}

	resolver, err := agreementapp.NewResolver(agreements)
	if err != nil {
		logger.Fatalw("resolver error", "error", err)
	}

	policy, ok := pricing.ParseNumericPolicy(cfg.NumericPolicy)
	if !ok {
		logger.Fatalw("invalid numeric policy", "policy", cfg.NumericPolicy)
	}
	strategies := pricing.NewRegistry()
	strategies.Register(pricing.NewStandardStrategy(policy))
	strategies.Register(pricing.NewTieredStrategy(policy, pricing.WithOverflowHook(func(decimal.Decimal) {
		metrics.IncTierOverflow()
	})))
	strategies.Register(pricing.NewVolumeAndDistanceStrategy(policy))

	engine, err := pricingapp.NewEngine(strategies, pricingapp.WithDefaultCurrency(cfg.DefaultCurrency))
	if err != nil {
		logger.Fatalw("pricing engine error", "error", err)
	}

	consumerOpts := []pricinginterfaces.ConsumerOption{
		pricinginterfaces.WithCustomerColumn(cfg.CustomerColumn),
	}
	if db != nil {
		enrichedLines, err := pricingpg.NewEnrichedLineRepository(db)
		if err != nil {
			logger.Fatalw("enriched line repository error", "error", err)
		}
		consumerOpts = append(consumerOpts, pricinginterfaces.WithEnrichedLineStore(enrichedLines))
	}
	lineConsumer, err := pricinginterfaces.NewLineConsumer(resolver, engine, publisher, logger, consumerOpts...)
	if err != nil {
		logger.Fatalw("line consumer error", "error", err)
	}

	var alertChannel notify.Channel = notify.NewLogChannel(logger)
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.WebhookURL)
		if err != nil {
			logger.Fatalw("webhook channel error", "error", err)
		}
		alertChannel = notify.NewMultiChannel(webhook, alertChannel)
	}

	bucketStore := assemblymem.NewBucketStore()
	aggregator, err := assemblyapp.NewAggregator(bucketStore, publisher, logger,
		assemblyapp.WithTTL(cfg.BucketTTL),
		assemblyapp.WithSweepInterval(cfg.SweepInterval),
		assemblyapp.WithExpiryNotifier(notify.NewAlerter(alertChannel)),
	)
	if err != nil {
		logger.Fatalw("aggregator error", "error", err)
	}

	var (
		invoiceSaver  deliveryapp.InvoiceStore
		invoiceReader apihttp.InvoiceReader
	)
	if db != nil {
		invoiceRepo, err := assemblypg.NewInvoiceRepository(db)
		if err != nil {
			logger.Fatalw("invoice repository error", "error", err)
		}
		invoiceSaver, invoiceReader = invoiceRepo, invoiceRepo
	} else {
		invoiceStore := assemblymem.NewInvoiceStore()
		invoiceSaver, invoiceReader = invoiceStore, invoiceStore
	}

	renderer, err := deliveryapp.NewRenderer(publisher, cfg.StorageRoot, logger,
		deliveryapp.WithInvoiceStore(invoiceSaver))
	if err != nil {
		logger.Fatalw("renderer error", "error", err)
	}

	template, err := notify.NewTemplate(cfg.NotifyTemplate)
	if err != nil {
		logger.Fatalw("notify template error", "error", err)
	}
	documentChannel, err := notify.NewDocumentChannel(alertChannel, template)
	if err != nil {
		logger.Fatalw("document channel error", "error", err)
	}
	sender, err := deliveryapp.NewSender(publisher, documentChannel, logger)
	if err != nil {
		logger.Fatalw("sender error", "error", err)
	}

	parserService, err := parserapp.NewService(publisher, logger)
	if err != nil {
		logger.Fatalw("parser service error", "error", err)
	}
	ingestService, err := ingestapp.NewService(publisher, logger,
		ingestapp.WithStorageRoot(cfg.StorageRoot))
	if err != nil {
		logger.Fatalw("ingest service error", "error", err)
	}

	eventing.Subscribe(bus, eventing.EventTypeOf[ingestevents.FileStored](), "parser", parserService.HandleFileStored, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[parserevents.CarrierLineExtracted](), "pricing", lineConsumer.HandleCarrierLineExtracted, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[pricingevents.InvoiceLinePriced](), "assembly", aggregator.HandleInvoiceLinePriced, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[assemblyevents.InvoiceAssembled](), "renderer", renderer.HandleInvoiceAssembled, processed)
	eventing.Subscribe(bus, eventing.EventTypeOf[deliveryevents.InvoiceRendered](), "sender", sender.HandleInvoiceRendered, processed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go aggregator.Run(ctx)
	if dispatcher != nil {
		go runDispatcher(ctx, dispatcher, logger)
	}

	var auditLog audit.Logger
	if db != nil {
		auditLog = audit.NewRepository(db)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/invoice-files", apihttp.NewUploadHandler(ingestService, auditLog))
	mux.Handle("/api/v1/invoices/", apihttp.NewInvoiceHandler(invoiceReader, cfg.StorageRoot))
	if db != nil {
		repo := agreementpg.NewRepository(db)
		mux.Handle("/api/v1/agreements", apihttp.NewAgreementsHandler(repo, repo, auditLog))
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", apihttp.HealthHandler{})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(handler)
	}
	handler = loggingMiddleware(handler, logger)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infow("http listening", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("http server error", "error", err)
	}
}

func runDispatcher(ctx context.Context, dispatcher *eventing.Dispatcher, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dispatcher.Dispatch(ctx, 64); err != nil {
				logger.Errorw("outbox dispatch error", "error", err)
			}
		}
	}
}

func loggingMiddleware(next http.Handler, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
