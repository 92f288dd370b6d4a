package eventsource_test

import (
	"context"
	"errors"
	"testing"

	es "github.com/tidemark/eventsource"
)

// Cart is a small event-sourced aggregate used by the repository tests.
type Cart struct {
	*es.AggregateBase
	Items   map[string]int `json:"items"`
	Shipped bool           `json:"shipped"`

	apply func(env *es.Envelope) error
}

func NewCart(id string) *Cart {
	c := &Cart{
		AggregateBase: es.NewAggregateBase(id),
		Items:         make(map[string]int),
	}
	c.apply = es.NewApplier(
		es.OnApply(func(ev ItemAdded) { c.Items[ev.ItemID] += ev.Qty }),
		es.OnApply(func(ev OrderShipped) { c.Shipped = true }),
	)
	return c
}

func (c *Cart) ApplyEvent(env *es.Envelope) error { return c.apply(env) }

func (c *Cart) AddItem(itemID string, qty int) {
	ev := ItemAdded{OrderID: c.EntityID(), ItemID: itemID, Qty: qty}
	c.AppendEvent(ev)
	c.Items[itemID] += qty
}

func (c *Cart) Ship() {
	c.AppendEvent(OrderShipped{OrderID: c.EntityID()})
	c.Shipped = true
}

// failingSnapshotStore fails every save.
type failingSnapshotStore struct {
	saveCalls int
}

func (f *failingSnapshotStore) SaveSnapshot(ctx context.Context, s *es.Snapshot) error {
	f.saveCalls++
	return errors.New("disk full")
}

func (f *failingSnapshotStore) GetSnapshot(ctx context.Context, id string) (*es.Snapshot, error) {
	return nil, es.ErrSnapshotNotFound
}

func (f *failingSnapshotStore) DeleteSnapshots(ctx context.Context, id string) error { return nil }

// gapStore serves a stream with a version hole.
type gapStore struct{}

func (gapStore) Append(ctx context.Context, events []es.Envelope, expectedVersion uint64) error {
	return nil
}

func (gapStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	e1 := newEnvelope(ItemAdded{OrderID: id, ItemID: "a", Qty: 1}, 1)
	e3 := newEnvelope(ItemAdded{OrderID: id, ItemID: "b", Qty: 1}, 3)
	return es.NewSliceIterator([]*es.Envelope{&e1, &e3}), nil
}

func (s gapStore) LoadStreamFrom(ctx context.Context, id string, version uint64) (*es.Iterator[*es.Envelope], error) {
	return s.LoadStream(ctx, id)
}

func (gapStore) Close() error { return nil }

func TestRepositoryRoundtrip(t *testing.T) {
	store := es.NewMemoryStore()
	repo := es.NewRepository(store, NewCart)

	cart := NewCart("cart-1")
	cart.AddItem("apple", 2)
	cart.AddItem("pear", 1)
	cart.Ship()

	if err := repo.Save(t.Context(), cart); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if cart.AggregateVersion() != 3 {
		t.Errorf("expected version 3 after save, got %d", cart.AggregateVersion())
	}
	if len(cart.UncommittedEvents()) != 0 {
		t.Errorf("expected uncommitted events cleared, got %d", len(cart.UncommittedEvents()))
	}

	loaded, err := repo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AggregateVersion() != 3 {
		t.Errorf("expected version 3, got %d", loaded.AggregateVersion())
	}
	if loaded.Items["apple"] != 2 || loaded.Items["pear"] != 1 {
		t.Errorf("unexpected items: %v", loaded.Items)
	}
	if !loaded.Shipped {
		t.Error("expected shipped cart")
	}
}

func TestRepositorySaveNoEventsIsNoop(t *testing.T) {
	repo := es.NewRepository(es.NewMemoryStore(), NewCart)

	if err := repo.Save(t.Context(), NewCart("cart-1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := repo.GetByID(t.Context(), "cart-1"); !errors.Is(err, es.ErrAggregateNotFound) {
		t.Errorf("expected ErrAggregateNotFound, got %v", err)
	}
}

func TestRepositoryGetByIDUnknownAggregate(t *testing.T) {
	repo := es.NewRepository(es.NewMemoryStore(), NewCart)

	_, err := repo.GetByID(t.Context(), "missing")
	if !errors.Is(err, es.ErrAggregateNotFound) {
		t.Fatalf("expected ErrAggregateNotFound, got %v", err)
	}
}

func TestRepositorySnapshotAndReplayMatchesFullReplay(t *testing.T) {
	store := es.NewMemoryStore()
	snapshots := es.NewMemorySnapshotStore()

	snapshotRepo := es.NewRepository(store, NewCart,
		es.WithSnapshots[*Cart](snapshots, es.NewEventCountSnapshotStrategy(3)),
	)
	plainRepo := es.NewRepository(store, NewCart)

	cart := NewCart("cart-1")
	// Save in uneven batches so snapshots land mid-history.
	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, item := range items {
		cart.AddItem(item, i+1)
		if (i+1)%2 == 0 || i == len(items)-1 {
			if err := snapshotRepo.Save(t.Context(), cart); err != nil {
				t.Fatalf("save failed: %v", err)
			}
		}
	}

	if _, err := snapshots.GetSnapshot(t.Context(), "cart-1"); err != nil {
		t.Fatalf("expected a snapshot to exist: %v", err)
	}

	fromSnapshot, err := snapshotRepo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("snapshot load failed: %v", err)
	}
	fromReplay, err := plainRepo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("full replay failed: %v", err)
	}

	if fromSnapshot.AggregateVersion() != fromReplay.AggregateVersion() {
		t.Errorf("version mismatch: snapshot=%d replay=%d",
			fromSnapshot.AggregateVersion(), fromReplay.AggregateVersion())
	}
	for item, qty := range fromReplay.Items {
		if fromSnapshot.Items[item] != qty {
			t.Errorf("item %q: snapshot=%d replay=%d", item, fromSnapshot.Items[item], qty)
		}
	}
}

func TestRepositorySnapshotFailureDoesNotFailSave(t *testing.T) {
	store := es.NewMemoryStore()
	failing := &failingSnapshotStore{}
	repo := es.NewRepository(store, NewCart,
		es.WithSnapshots[*Cart](failing, es.NewEventCountSnapshotStrategy(1)),
	)

	cart := NewCart("cart-1")
	cart.AddItem("apple", 1)

	if err := repo.Save(t.Context(), cart); err != nil {
		t.Fatalf("save must succeed despite snapshot failure, got %v", err)
	}
	if failing.saveCalls != 1 {
		t.Errorf("expected 1 snapshot attempt, got %d", failing.saveCalls)
	}

	loaded, err := repo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Items["apple"] != 1 {
		t.Errorf("unexpected items: %v", loaded.Items)
	}
}

func TestRepositoryConcurrencyErrorPropagated(t *testing.T) {
	store := es.NewMemoryStore()
	repo := es.NewRepository(store, NewCart)

	cart := NewCart("cart-1")
	cart.AddItem("apple", 1)
	if err := repo.Save(t.Context(), cart); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	first, err := repo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	second, err := repo.GetByID(t.Context(), "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	first.AddItem("pear", 1)
	if err := repo.Save(t.Context(), first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second.AddItem("plum", 1)
	err = repo.Save(t.Context(), second)

	var conflict *es.ConcurrencyError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConcurrencyError, got %v", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Errorf("expected conflict 1/2, got %d/%d", conflict.Expected, conflict.Actual)
	}
}

func TestRepositoryDetectsVersionGap(t *testing.T) {
	repo := es.NewRepository(gapStore{}, NewCart)

	_, err := repo.GetByID(t.Context(), "cart-1")
	if !errors.Is(err, es.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
}
