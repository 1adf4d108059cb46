package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoicing-cloud/internal/assembly/application/events"
	assembly "invoicing-cloud/internal/assembly/domain"
	"invoicing-cloud/internal/eventing"
	"invoicing-cloud/internal/observability/metrics"
	pricingevents "invoicing-cloud/internal/pricing/application/events"
)

const (
	defaultBucketTTL     = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// BucketStore serializes bucket mutations per correlation id. Update runs
// fn while holding the key lock, creating the bucket with createdAt when it
// does not exist yet.
// Expire marks accumulating buckets opened before cutoff as expired and
// returns them; closed tombstones whose close time passed cutoff are purged.
type BucketStore interface {
	Update(ctx context.Context, correlationID string, createdAt time.Time, fn func(*assembly.Bucket) error) error
	Expire(ctx context.Context, cutoff time.Time) ([]*assembly.Bucket, error)
	Count(ctx context.Context) (int, error)
}

// Publisher is the outbound event contract.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// IDFactory mints invoice identifiers.
type IDFactory interface {
	NewInvoiceID() string
}

// UUIDFactory mints UUID invoice identifiers.
type UUIDFactory struct{}

// NewInvoiceID returns a fresh UUID.
func (UUIDFactory) NewInvoiceID() string { return uuid.NewString() }

// Notifier delivers out-of-band alerts for expired buckets.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Aggregator folds priced lines into per-file buckets and assembles exactly
// one invoice per correlation id when the terminal line arrives.
type Aggregator struct {
	store    BucketStore
	bus      Publisher
	clock    assembly.Clock
	ids      IDFactory
	notifier Notifier
	logger   *zap.SugaredLogger

	ttl           time.Duration
	sweepInterval time.Duration
}

// AggregatorOption configures the aggregator.
type AggregatorOption func(*Aggregator)

// WithTTL overrides the bucket time-to-live.
func WithTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithSweepInterval overrides the expiry sweep cadence.
func WithSweepInterval(interval time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if interval > 0 {
			a.sweepInterval = interval
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock assembly.Clock) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithIDFactory overrides the invoice id factory.
func WithIDFactory(ids IDFactory) AggregatorOption {
	return func(a *Aggregator) {
		if ids != nil {
			a.ids = ids
		}
	}
}

// WithExpiryNotifier enables alerting on expired buckets.
func WithExpiryNotifier(notifier Notifier) AggregatorOption {
	return func(a *Aggregator) {
		a.notifier = notifier
	}
}

// NewAggregator constructs an aggregator.
func NewAggregator(store BucketStore, bus Publisher, logger *zap.SugaredLogger, opts ...AggregatorOption) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("aggregator: nil bucket store")
	}
	if bus == nil {
		return nil, errors.New("aggregator: nil bus")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	agg := &Aggregator{
		store:         store,
		bus:           bus,
		clock:         assembly.SystemClock{},
		ids:           UUIDFactory{},
		logger:        logger,
		ttl:           defaultBucketTTL,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(agg)
	}
	return agg, nil
}

// HandleInvoiceLinePriced appends one priced line to its bucket and, for the
// terminal line, finalizes the bucket and emits the assembled invoice.
// Finalized buckets stay in the store as tombstones until the sweep purges
// them, so a redelivered terminal line is counted and swallowed instead of
// opening a second invoice.
func (a *Aggregator) HandleInvoiceLinePriced(ctx context.Context, event any) error {
	evt, ok := event.(pricingevents.InvoiceLinePriced)
	if !ok {
		return eventing.ErrInvalidEventType
	}

	now := a.clock.Now()
	var invoice *assembly.Invoice
	err := a.store.Update(ctx, evt.CorrelationID, now, func(bucket *assembly.Bucket) error {
		if err := bucket.Append(evt.Line); err != nil {
			return err
		}
		if !evt.Line.IsTerminal {
			return nil
		}
		if err := bucket.Finalize(now); err != nil {
			return err
		}
		assembled, err := assembly.AssembleInvoice(a.ids.NewInvoiceID(), bucket, now)
		if err != nil {
			return err
		}
		invoice = &assembled
		return nil
	})
	if err != nil {
		if errors.Is(err, assembly.ErrBucketFinalized) {
			metrics.IncDuplicateTerminal()
			metrics.ObserveBucketAppend("duplicate")
			a.logger.Warnw("line after finalization dropped",
				"correlation_id", evt.CorrelationID,
				"position", evt.Line.Position,
			)
			return nil
		}
		if errors.Is(err, assembly.ErrBucketExpired) {
			metrics.ObserveBucketAppend("expired")
			a.logger.Warnw("line for expired bucket dropped",
				"correlation_id", evt.CorrelationID,
				"position", evt.Line.Position,
			)
			return nil
		}
		metrics.ObserveBucketAppend(metrics.ResultError)
		return err
	}
	metrics.ObserveBucketAppend(metrics.ResultSuccess)
	a.trackOpenBuckets(ctx)

	if invoice == nil {
		return nil
	}

	if err := a.bus.Publish(ctx, events.InvoiceAssembled{
		CorrelationID: evt.CorrelationID,
		Invoice:       *invoice,
		OccurredAt:    now,
	}); err != nil {
		return fmt.Errorf("publish assembled invoice: %w", err)
	}
	metrics.IncInvoiceAssembled()
	a.logger.Infow("invoice assembled",
		"correlation_id", evt.CorrelationID,
		"invoice_id", invoice.ID,
		"lines", len(invoice.Lines),
		"total", invoice.Total.String(),
		"currency", invoice.Currency,
	)
	return nil
}

// SweepOnce expires buckets older than the TTL and emits alerts for them.
func (a *Aggregator) SweepOnce(ctx context.Context) error {
	now := a.clock.Now()
	expired, err := a.store.Expire(ctx, now.Add(-a.ttl))
	if err != nil {
		return fmt.Errorf("expire buckets: %w", err)
	}
	for _, bucket := range expired {
		metrics.IncBucketExpired()
		a.logger.Warnw("bucket expired before terminal line",
			"correlation_id", bucket.CorrelationID(),
			"lines", bucket.LineCount(),
			"age", now.Sub(bucket.CreatedAt()).String(),
		)
		if err := a.bus.Publish(ctx, events.BucketExpired{
			CorrelationID: bucket.CorrelationID(),
			LineCount:     bucket.LineCount(),
			CreatedAt:     bucket.CreatedAt(),
			OccurredAt:    now,
		}); err != nil {
			a.logger.Errorw("publish bucket expiry failed", "correlation_id", bucket.CorrelationID(), "error", err)
		}
		if a.notifier != nil {
			message := fmt.Sprintf("invoice batch %s expired after %s with %d lines and no terminal line",
				bucket.CorrelationID(), a.ttl, bucket.LineCount())
			if err := a.notifier.Notify(ctx, "invoice batch expired", message); err != nil {
				a.logger.Errorw("expiry alert failed", "correlation_id", bucket.CorrelationID(), "error", err)
			}
		}
	}
	a.trackOpenBuckets(ctx)
	return nil
}

// Run sweeps for expired buckets until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.SweepOnce(ctx); err != nil {
				a.logger.Errorw("bucket sweep failed", "error", err)
			}
		}
	}
}

func (a *Aggregator) trackOpenBuckets(ctx context.Context) {
	if count, err := a.store.Count(ctx); err == nil {
		metrics.SetOpenBuckets(count)
	}
}
