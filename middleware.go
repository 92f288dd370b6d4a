package eventsource

import "context"

// Handler processes one event delivered through the middleware chain.
type Handler interface {
	Handle(ctx context.Context, hctx *EventHandlerContext) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *EventHandlerContext) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, hctx *EventHandlerContext) (any, error) {
	return f(ctx, hctx)
}

// OnEvent creates a strongly-typed Handler for a specific event type. The
// chain fails with *TypeMismatchError when a different event type reaches it.
func OnEvent[T Event](fn func(ctx context.Context, ev T, hctx *EventHandlerContext) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, hctx *EventHandlerContext) (any, error) {
		ev, err := EventAs[T](hctx)
		if err != nil {
			return nil, err
		}
		return fn(ctx, ev, hctx)
	})
}

// Next represents everything inside the current middleware, terminating at
// the handler.
type Next func(ctx context.Context, hctx *EventHandlerContext) (any, error)

// Middleware wraps handler execution. A middleware that never calls next
// short-circuits the chain: the handler and every inner middleware are
// skipped and only the middleware's own result is returned.
type Middleware interface {
	Process(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error)
}

// MiddlewareFunc adapts a plain function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error)

func (f MiddlewareFunc) Process(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error) {
	return f(ctx, hctx, next)
}

// BuildChain composes middlewares around a handler, onion style: the first
// middleware is outermost, running its pre-logic first and its post-logic
// last. The terminal link converts handler failures (returned errors and
// panics alike) into *HandlerError.
func BuildChain(handler Handler, middlewares ...Middleware) Next {
	next := Next(func(ctx context.Context, hctx *EventHandlerContext) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out = nil
				err = &HandlerError{
					EventType: hctx.EventType(),
					Err:       newPanicError(r),
				}
			}
		}()

		out, err = handler.Handle(ctx, hctx)
		if err != nil {
			return out, &HandlerError{EventType: hctx.EventType(), Err: err}
		}
		return out, nil
	})

	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		inner := next
		next = func(ctx context.Context, hctx *EventHandlerContext) (any, error) {
			return mw.Process(ctx, hctx, inner)
		}
	}

	return next
}
