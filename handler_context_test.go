package eventsource_test

import (
	"errors"
	"testing"

	es "github.com/tidemark/eventsource"
)

func TestEventHandlerContextAccessors(t *testing.T) {
	env := testEnvelope(OrderCreated{OrderID: "order-1", CustomerID: "cust-1"})
	hctx := es.NewEventHandlerContext(env, map[string]any{"tenant": "acme", "attempt": 1})

	if hctx.Envelope() != env {
		t.Error("expected the original envelope")
	}
	if hctx.EventType() != "OrderCreated" {
		t.Errorf("expected OrderCreated, got %s", hctx.EventType())
	}

	v, ok := hctx.Metadata("tenant")
	if !ok || v != "acme" {
		t.Errorf("expected tenant=acme, got %v (%v)", v, ok)
	}
	if _, ok := hctx.Metadata("missing"); ok {
		t.Error("expected missing key to report false")
	}
}

func TestMetadataKeysDeterministicOrder(t *testing.T) {
	env := testEnvelope(OrderCreated{OrderID: "order-1"})
	hctx := es.NewEventHandlerContext(env, map[string]any{"zebra": 1, "alpha": 2, "mid": 3})

	keys := hctx.MetadataKeys()
	want := []string{"alpha", "mid", "zebra"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestMetadataCopiedAtCreation(t *testing.T) {
	metadata := map[string]any{"tenant": "acme"}
	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), metadata)

	metadata["tenant"] = "changed"

	v, _ := hctx.Metadata("tenant")
	if v != "acme" {
		t.Errorf("context metadata must be isolated from the source map; got %v", v)
	}
}

func TestWithExtraLeavesReceiverUnchanged(t *testing.T) {
	base := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)

	derived := base.WithExtra("user", "alice")
	again := derived.WithExtra("role", "admin")

	if _, ok := base.Extra("user"); ok {
		t.Error("base context must not see derived extras")
	}
	if _, ok := derived.Extra("role"); ok {
		t.Error("first derivation must not see later extras")
	}

	if v, ok := again.Extra("user"); !ok || v != "alice" {
		t.Errorf("expected inherited extra user=alice, got %v (%v)", v, ok)
	}
	if v, ok := again.Extra("role"); !ok || v != "admin" {
		t.Errorf("expected role=admin, got %v (%v)", v, ok)
	}
}

func TestEventAs(t *testing.T) {
	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1", CustomerID: "cust-1"}), nil)

	ev, err := es.EventAs[OrderCreated](hctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.CustomerID != "cust-1" {
		t.Errorf("expected cust-1, got %s", ev.CustomerID)
	}

	_, err = es.EventAs[ItemAdded](hctx)
	var mismatch *es.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *TypeMismatchError, got %v", err)
	}
	if mismatch.Requested != "ItemAdded" || mismatch.Actual != "OrderCreated" {
		t.Errorf("unexpected mismatch detail: %+v", mismatch)
	}
}
