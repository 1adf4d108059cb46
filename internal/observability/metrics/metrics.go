package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	metricPrefix = "invoicing_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	parseTotal     *prometheus.CounterVec
	parseLatency   *prometheus.HistogramVec
	linesExtracted prometheus.Counter

	linesPriced       *prometheus.CounterVec
	pricingLatency    *prometheus.HistogramVec
	agreementMissing  prometheus.Counter
	tierOverflowTotal prometheus.Counter

	bucketAppends     *prometheus.CounterVec
	invoicesAssembled prometheus.Counter
	duplicateTerminal prometheus.Counter
	bucketsExpired    prometheus.Counter
	openBuckets       prometheus.Gauge

	invoiceExportTotal   *prometheus.CounterVec
	invoiceExportLatency *prometheus.HistogramVec

	invoicesSent *prometheus.CounterVec

	outboxDispatched *prometheus.CounterVec
)

// Init registers pipeline metrics and DB-backed gauges. Safe to call more
// than once; only the first call registers.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total invoice file ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		parseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "parse_total",
				Help: "Total carrier file parses by format and result",
			},
			[]string{"format", "result"},
		)
		parseLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "parse_latency_seconds",
				Help:    "Carrier file parse latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		linesExtracted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "lines_extracted_total",
				Help: "Total carrier lines extracted from files",
			},
		)

		linesPriced = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lines_priced_total",
				Help: "Total priced lines by strategy and result",
			},
			[]string{"strategy", "result"},
		)
		pricingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pricing_latency_seconds",
				Help:    "Per-line pricing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy", "result"},
		)
		agreementMissing = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "agreement_missing_total",
				Help: "Total aborted batches with no effective agreement",
			},
		)
		tierOverflowTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "pricing_tier_overflow_total",
				Help: "Total quantity units beyond the last configured tier",
			},
		)

		bucketAppends = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bucket_appends_total",
				Help: "Total line appends to aggregation buckets by result",
			},
			[]string{"result"},
		)
		invoicesAssembled = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_assembled_total",
				Help: "Total invoices assembled from finalized buckets",
			},
		)
		duplicateTerminal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "duplicate_terminal_total",
				Help: "Total terminal lines observed after bucket finalization",
			},
		)
		bucketsExpired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "buckets_expired_total",
				Help: "Total aggregation buckets expired before finalization",
			},
		)
		openBuckets = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_buckets",
				Help: "Aggregation buckets currently accumulating",
			},
		)

		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_export_total",
				Help: "Total invoice document exports by format and result",
			},
			[]string{"format", "result"},
		)
		invoiceExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_export_latency_seconds",
				Help:    "Invoice document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		invoicesSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_sent_total",
				Help: "Total invoice send attempts by result",
			},
			[]string{"result"},
		)

		outboxDispatched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatched_total",
				Help: "Total outbox events dispatched by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			parseTotal,
			parseLatency,
			linesExtracted,
			linesPriced,
			pricingLatency,
			agreementMissing,
			tierOverflowTotal,
			bucketAppends,
			invoicesAssembled,
			duplicateTerminal,
			bucketsExpired,
			openBuckets,
			invoiceExportTotal,
			invoiceExportLatency,
			invoicesSent,
			outboxDispatched,
		)

		if db != nil {
			prometheus.MustRegister(collectors.NewDBStatsCollector(db, "invoicing"))
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveParse records file parse latency and result.
func ObserveParse(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if parseTotal != nil {
		parseTotal.WithLabelValues(format, result).Inc()
	}
	if parseLatency != nil {
		parseLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddLinesExtracted increments the extracted line counter by count.
func AddLinesExtracted(count int) {
	if count <= 0 {
		return
	}
	if linesExtracted != nil {
		linesExtracted.Add(float64(count))
	}
}

// ObserveLinePriced records per-line pricing latency and result.
func ObserveLinePriced(result, strategy string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if strategy == "" {
		strategy = "standard"
	}
	if linesPriced != nil {
		linesPriced.WithLabelValues(strategy, result).Inc()
	}
	if pricingLatency != nil {
		pricingLatency.WithLabelValues(strategy, result).Observe(duration.Seconds())
	}
}

// IncAgreementMissing increments the missing-agreement abort counter.
func IncAgreementMissing() {
	if agreementMissing != nil {
		agreementMissing.Inc()
	}
}

// IncTierOverflow increments the tiered-pricing overflow counter.
func IncTierOverflow() {
	if tierOverflowTotal != nil {
		tierOverflowTotal.Inc()
	}
}

// ObserveBucketAppend increments the bucket append counter.
func ObserveBucketAppend(result string) {
	if result == "" {
		result = resultSuccess
	}
	if bucketAppends != nil {
		bucketAppends.WithLabelValues(result).Inc()
	}
}

// IncInvoiceAssembled increments the assembled invoice counter.
func IncInvoiceAssembled() {
	if invoicesAssembled != nil {
		invoicesAssembled.Inc()
	}
}

// IncDuplicateTerminal increments the duplicate terminal line counter.
func IncDuplicateTerminal() {
	if duplicateTerminal != nil {
		duplicateTerminal.Inc()
	}
}

// IncBucketExpired increments the expired bucket counter.
func IncBucketExpired() {
	if bucketsExpired != nil {
		bucketsExpired.Inc()
	}
}

// SetOpenBuckets sets the open bucket gauge.
func SetOpenBuckets(count int) {
	if openBuckets != nil {
		openBuckets.Set(float64(count))
	}
}

// ObserveInvoiceExport records export latency and result.
func ObserveInvoiceExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format, result).Inc()
	}
	if invoiceExportLatency != nil {
		invoiceExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncInvoiceSent increments the invoice send counter.
func IncInvoiceSent(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoicesSent != nil {
		invoicesSent.WithLabelValues(result).Inc()
	}
}

// IncOutboxDispatched increments the outbox dispatch counter.
func IncOutboxDispatched(result string) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatched != nil {
		outboxDispatched.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
