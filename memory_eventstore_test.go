package eventsource_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	es "github.com/tidemark/eventsource"
)

// Test event types

type OrderCreated struct {
	OrderID    string
	CustomerID string
}

func (e OrderCreated) AggregateID() string { return e.OrderID }
func (e OrderCreated) EventType() string   { return "OrderCreated" }

type ItemAdded struct {
	OrderID string
	ItemID  string
	Qty     int
}

func (e ItemAdded) AggregateID() string { return e.OrderID }
func (e ItemAdded) EventType() string   { return "ItemAdded" }

type OrderShipped struct {
	OrderID string
}

func (e OrderShipped) AggregateID() string { return e.OrderID }
func (e OrderShipped) EventType() string   { return "OrderShipped" }

// Helper functions

func newEnvelope(event es.Event, version uint64) es.Envelope {
	return es.Envelope{
		EventID:     uuid.New(),
		AggregateID: event.AggregateID(),
		Event:       event,
		Version:     version,
		OccurredAt:  time.Now(),
		Metadata:    map[string]any{},
	}
}

func batch(from uint64, events ...es.Event) []es.Envelope {
	out := make([]es.Envelope, len(events))
	for i, ev := range events {
		out[i] = newEnvelope(ev, from+uint64(i)+1)
	}
	return out
}

func collectAll(t *testing.T, iter *es.Iterator[*es.Envelope]) []*es.Envelope {
	t.Helper()
	all, err := iter.All(context.Background())
	if err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	return all
}

// Append tests

func TestAppendEmptyBatch(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	if err := store.Append(t.Context(), nil, 0); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestAppendAndLoadPreservesOrder(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	events := batch(0,
		OrderCreated{OrderID: "order-1", CustomerID: "cust-1"},
		ItemAdded{OrderID: "order-1", ItemID: "item-1", Qty: 2},
		OrderShipped{OrderID: "order-1"},
	)

	if err := store.Append(t.Context(), events, 0); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	iter, err := store.LoadStream(t.Context(), "order-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := collectAll(t, iter)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, env := range got {
		if env.Version != uint64(i+1) {
			t.Errorf("event %d: expected version %d, got %d", i, i+1, env.Version)
		}
	}
	if got[0].Event.EventType() != "OrderCreated" {
		t.Errorf("expected OrderCreated first, got %s", got[0].Event.EventType())
	}
	if got[2].Event.EventType() != "OrderShipped" {
		t.Errorf("expected OrderShipped last, got %s", got[2].Event.EventType())
	}
}

func TestAppendStaleVersionFailsWithoutPartialWrite(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	if err := store.Append(t.Context(), batch(0,
		OrderCreated{OrderID: "order-1"},
		ItemAdded{OrderID: "order-1", ItemID: "item-1", Qty: 1},
	), 0); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// A second writer that still believes the stream is empty must fail.
	err := store.Append(t.Context(), batch(0, OrderCreated{OrderID: "order-1"}), 0)

	var conflict *es.ConcurrencyError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConcurrencyError, got %v", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 2 {
		t.Errorf("expected conflict 0/2, got %d/%d", conflict.Expected, conflict.Actual)
	}
	if conflict.AggregateID != "order-1" {
		t.Errorf("expected aggregate order-1, got %q", conflict.AggregateID)
	}

	iter, err := store.LoadStream(t.Context(), "order-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := collectAll(t, iter); len(got) != 2 {
		t.Errorf("stream changed after failed append: %d events", len(got))
	}
}

func TestAppendMixedAggregatesRejected(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	events := []es.Envelope{
		newEnvelope(OrderCreated{OrderID: "order-1"}, 1),
		newEnvelope(OrderCreated{OrderID: "order-2"}, 2),
	}

	err := store.Append(t.Context(), events, 0)
	if !errors.Is(err, es.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}

	iter, _ := store.LoadStream(t.Context(), "order-1")
	if got := collectAll(t, iter); len(got) != 0 {
		t.Errorf("expected no events written, got %d", len(got))
	}
}

func TestAppendNonContiguousVersionsRejected(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	events := []es.Envelope{
		newEnvelope(OrderCreated{OrderID: "order-1"}, 1),
		newEnvelope(ItemAdded{OrderID: "order-1"}, 3),
	}

	err := store.Append(t.Context(), events, 0)
	if !errors.Is(err, es.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
}

func TestConcurrentAppendsExactlyOneWins(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			errs <- store.Append(context.Background(), batch(0, OrderCreated{OrderID: "order-1"}), 0)
		}()
	}

	won := 0
	for i := 0; i < writers; i++ {
		if err := <-errs; err == nil {
			won++
		} else {
			var conflict *es.ConcurrencyError
			if !errors.As(err, &conflict) {
				t.Errorf("expected *ConcurrencyError, got %v", err)
			}
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one winner, got %d", won)
	}
}

// Load tests

func TestLoadStreamUnknownAggregateIsEmpty(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	iter, err := store.LoadStream(t.Context(), "missing")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := collectAll(t, iter); len(got) != 0 {
		t.Errorf("expected empty iterator, got %d events", len(got))
	}
}

func TestLoadStreamFromSkipsUpToVersion(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	if err := store.Append(t.Context(), batch(0,
		OrderCreated{OrderID: "order-1"},
		ItemAdded{OrderID: "order-1", ItemID: "a"},
		ItemAdded{OrderID: "order-1", ItemID: "b"},
		OrderShipped{OrderID: "order-1"},
	), 0); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	iter, err := store.LoadStreamFrom(t.Context(), "order-1", 2)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := collectAll(t, iter)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Version != 3 || got[1].Version != 4 {
		t.Errorf("expected versions 3,4 got %d,%d", got[0].Version, got[1].Version)
	}
}

func TestLoadRespectsContextCancellation(t *testing.T) {
	store := es.NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.LoadStream(ctx, "order-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := store.Append(ctx, batch(0, OrderCreated{OrderID: "order-1"}), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCloseClearsStore(t *testing.T) {
	store := es.NewMemoryStore()

	if err := store.Append(t.Context(), batch(0, OrderCreated{OrderID: "order-1"}), 0); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	iter, err := store.LoadStream(t.Context(), "order-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := collectAll(t, iter); len(got) != 0 {
		t.Errorf("expected store cleared, got %d events", len(got))
	}
}
