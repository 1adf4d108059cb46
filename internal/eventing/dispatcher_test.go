package eventing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryOutbox struct {
	mu      sync.Mutex
	pending []OutboxRecord
	sent    []string
	failed  []string
}

func (o *memoryOutbox) ListPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit > len(o.pending) {
		limit = len(o.pending)
	}
	records := make([]OutboxRecord, limit)
	copy(records, o.pending[:limit])
	return records, nil
}

func (o *memoryOutbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, id)
	o.drop(id)
	return nil
}

func (o *memoryOutbox) MarkFailed(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, id)
	o.drop(id)
	return nil
}

func (o *memoryOutbox) drop(id string) {
	for i, record := range o.pending {
		if record.ID == id {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}

type memoryDLQ struct {
	mu       sync.Mutex
	failures []Envelope
}

func (d *memoryDLQ) RecordFailure(ctx context.Context, env Envelope, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, env)
	return nil
}

func pendingRecord(t *testing.T, id string, event testEvent) OutboxRecord {
	t.Helper()
	env, err := BuildEnvelope(event, Meta{EventID: id})
	if err != nil {
		t.Fatalf("BuildEnvelope() error = %v", err)
	}
	return OutboxRecord{ID: id, Envelope: env}
}

func TestDispatcherDeliversPendingRecords(t *testing.T) {
	bus := NewInMemoryBus()
	var received []testEvent
	bus.Subscribe(EventTypeOf[testEvent](), func(ctx context.Context, event any) error {
		received = append(received, event.(testEvent))
		return nil
	})

	registry := NewRegistry()
	registry.Register(testEvent{})

	outbox := &memoryOutbox{pending: []OutboxRecord{
		pendingRecord(t, "r1", testEvent{CorrelationID: "batch-1", Value: 1, OccurredAt: time.Now().UTC()}),
		pendingRecord(t, "r2", testEvent{CorrelationID: "batch-1", Value: 2, OccurredAt: time.Now().UTC()}),
	}}
	dlq := &memoryDLQ{}

	dispatcher := NewDispatcher(bus, outbox, registry, dlq)
	if err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(received) != 2 {
		t.Fatalf("received %d events, want 2", len(received))
	}
	if received[0].Value != 1 || received[1].Value != 2 {
		t.Fatalf("events out of order: %+v", received)
	}
	if len(outbox.sent) != 2 {
		t.Fatalf("marked sent %v, want 2 records", outbox.sent)
	}
	if len(outbox.failed) != 0 || len(dlq.failures) != 0 {
		t.Fatalf("unexpected failures: outbox=%v dlq=%d", outbox.failed, len(dlq.failures))
	}
}

func TestDispatcherRoutesUnknownTypeToDLQ(t *testing.T) {
	bus := NewInMemoryBus()
	registry := NewRegistry()

	record := pendingRecord(t, "r1", testEvent{CorrelationID: "batch-1", Value: 1})
	outbox := &memoryOutbox{pending: []OutboxRecord{record}}
	dlq := &memoryDLQ{}

	dispatcher := NewDispatcher(bus, outbox, registry, dlq)
	if err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(outbox.failed) != 1 || outbox.failed[0] != "r1" {
		t.Fatalf("marked failed %v, want [r1]", outbox.failed)
	}
	if len(dlq.failures) != 1 || dlq.failures[0].EventID != "r1" {
		t.Fatalf("dlq failures %+v, want envelope r1", dlq.failures)
	}
}

func TestDispatcherRecordsHandlerFailure(t *testing.T) {
	bus := NewInMemoryBus()
	handlerErr := errors.New("handler broke")
	bus.Subscribe(EventTypeOf[testEvent](), func(ctx context.Context, event any) error {
		return handlerErr
	})

	registry := NewRegistry()
	registry.Register(testEvent{})

	outbox := &memoryOutbox{pending: []OutboxRecord{
		pendingRecord(t, "r1", testEvent{CorrelationID: "batch-1", Value: 1}),
	}}
	dlq := &memoryDLQ{}

	dispatcher := NewDispatcher(bus, outbox, registry, dlq)
	if err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(outbox.failed) != 1 {
		t.Fatalf("marked failed %v, want one record", outbox.failed)
	}
	if len(outbox.sent) != 0 {
		t.Fatalf("marked sent %v, want none", outbox.sent)
	}
	if len(dlq.failures) != 1 {
		t.Fatalf("dlq failures %d, want 1", len(dlq.failures))
	}
}

func TestDispatcherNilDependenciesNoop(t *testing.T) {
	var dispatcher *Dispatcher
	if err := dispatcher.Dispatch(context.Background(), 5); err != nil {
		t.Fatalf("nil dispatcher Dispatch() error = %v", err)
	}
	partial := NewDispatcher(nil, nil, nil, nil)
	if err := partial.Dispatch(context.Background(), 5); err != nil {
		t.Fatalf("partial dispatcher Dispatch() error = %v", err)
	}
}
