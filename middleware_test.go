package eventsource_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	es "github.com/tidemark/eventsource"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnvelope(event es.Event) *es.Envelope {
	env := newEnvelope(event, 1)
	return &env
}

func okHandler(out any) es.Handler {
	return es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		return out, nil
	})
}

func namedMiddleware(name string, trace *[]string) es.Middleware {
	return es.MiddlewareFunc(func(ctx context.Context, hctx *es.EventHandlerContext, next es.Next) (any, error) {
		*trace = append(*trace, name+":before")
		out, err := next(ctx, hctx)
		*trace = append(*trace, name+":after")
		return out, err
	})
}

func TestBuildChainOnionOrder(t *testing.T) {
	var trace []string

	chain := es.BuildChain(
		es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
			trace = append(trace, "handler")
			return "done", nil
		}),
		namedMiddleware("outer", &trace),
		namedMiddleware("inner", &trace),
	)

	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)
	out, err := chain(t.Context(), hctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("expected handler output, got %v", out)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(trace) != len(want) {
		t.Fatalf("expected %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, trace)
		}
	}
}

func TestBuildChainShortCircuit(t *testing.T) {
	handlerRan := false
	innerRan := false

	shortCircuit := es.MiddlewareFunc(func(ctx context.Context, hctx *es.EventHandlerContext, next es.Next) (any, error) {
		return "stopped", nil
	})
	inner := es.MiddlewareFunc(func(ctx context.Context, hctx *es.EventHandlerContext, next es.Next) (any, error) {
		innerRan = true
		return next(ctx, hctx)
	})

	chain := es.BuildChain(
		es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
			handlerRan = true
			return nil, nil
		}),
		shortCircuit,
		inner,
	)

	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)
	out, err := chain(t.Context(), hctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "stopped" {
		t.Errorf("expected short-circuit output, got %v", out)
	}
	if handlerRan || innerRan {
		t.Error("short-circuit must skip the handler and inner middleware")
	}
}

func TestBuildChainWrapsHandlerError(t *testing.T) {
	cause := errors.New("boom")
	chain := es.BuildChain(es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		return nil, cause
	}))

	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)
	_, err := chain(t.Context(), hctx)

	var handlerErr *es.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected *HandlerError, got %v", err)
	}
	if handlerErr.EventType != "OrderCreated" {
		t.Errorf("expected event type OrderCreated, got %q", handlerErr.EventType)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable via errors.Is")
	}
}

func TestBuildChainRecoversHandlerPanic(t *testing.T) {
	chain := es.BuildChain(es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		panic("kaboom")
	}))

	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)
	_, err := chain(t.Context(), hctx)

	var handlerErr *es.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected *HandlerError, got %v", err)
	}
}

func TestOnEventTypeMismatch(t *testing.T) {
	handler := es.OnEvent(func(ctx context.Context, ev ItemAdded, hctx *es.EventHandlerContext) (any, error) {
		return nil, nil
	})

	hctx := es.NewEventHandlerContext(testEnvelope(OrderCreated{OrderID: "order-1"}), nil)
	_, err := handler.Handle(t.Context(), hctx)

	var mismatch *es.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *TypeMismatchError, got %v", err)
	}
}

// Registry tests

func TestPublishNoHandlersIsNoop(t *testing.T) {
	registry := es.NewEventHandlerRegistry(discardLogger())

	if err := registry.Publish(t.Context(), testEnvelope(OrderCreated{OrderID: "order-1"})); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestPublishRunsHandlersInRegistrationOrder(t *testing.T) {
	registry := es.NewEventHandlerRegistry(discardLogger())

	var order []string
	registry.RegisterHandler("OrderCreated", es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		order = append(order, "first")
		return nil, nil
	}))
	registry.RegisterHandler("OrderCreated", es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		order = append(order, "second")
		return nil, nil
	}))

	if err := registry.Publish(t.Context(), testEnvelope(OrderCreated{OrderID: "order-1"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected execution order: %v", order)
	}
}

func TestPublishJoinsAllHandlerFailures(t *testing.T) {
	registry := es.NewEventHandlerRegistry(discardLogger())

	err1 := errors.New("first failure")
	ran := 0
	registry.RegisterHandler("OrderCreated", es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		ran++
		return nil, err1
	}))
	registry.RegisterHandler("OrderCreated", es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		ran++
		return nil, nil
	}))

	err := registry.Publish(t.Context(), testEnvelope(OrderCreated{OrderID: "order-1"}))
	if err == nil {
		t.Fatal("expected joined failure")
	}
	if ran != 2 {
		t.Errorf("a failing handler must not stop the others; ran %d", ran)
	}
	if !errors.Is(err, err1) {
		t.Error("expected first failure to be reachable via errors.Is")
	}
}

func TestPublishAppliesMiddlewareToEveryHandler(t *testing.T) {
	registry := es.NewEventHandlerRegistry(discardLogger())

	calls := 0
	registry.RegisterMiddleware(es.MiddlewareFunc(func(ctx context.Context, hctx *es.EventHandlerContext, next es.Next) (any, error) {
		calls++
		return next(ctx, hctx)
	}))
	registry.RegisterHandler("OrderCreated", okHandler(nil))
	registry.RegisterHandler("OrderCreated", okHandler(nil))

	if err := registry.Publish(t.Context(), testEnvelope(OrderCreated{OrderID: "order-1"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected middleware to run once per handler, got %d", calls)
	}
}

func TestPublishExposesEnvelopeOnContext(t *testing.T) {
	registry := es.NewEventHandlerRegistry(discardLogger())

	env := testEnvelope(OrderCreated{OrderID: "order-1"})
	var gotAggregate string
	var gotVersion uint64
	registry.RegisterHandler("OrderCreated", es.HandlerFunc(func(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
		gotAggregate = es.AggregateIDFromContext(ctx)
		gotVersion = es.VersionFromContext(ctx)
		return nil, nil
	}))

	if err := registry.Publish(t.Context(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAggregate != "order-1" {
		t.Errorf("expected aggregate order-1, got %q", gotAggregate)
	}
	if gotVersion != 1 {
		t.Errorf("expected version 1, got %d", gotVersion)
	}
}
