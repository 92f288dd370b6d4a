package logging

import (
	"context"
	"log/slog"

	"github.com/tidemark/eventsource"
)

// Middleware logs every dispatched event with its envelope fields pulled
// from the context.
type Middleware struct {
	log *slog.Logger
}

// NewMiddleware creates the logging middleware. A nil logger falls back to
// slog.Default().
func NewMiddleware(log *slog.Logger) *Middleware {
	if log == nil {
		log = slog.Default()
	}
	return &Middleware{log: log}
}

func (m *Middleware) Process(ctx context.Context, hctx *eventsource.EventHandlerContext, next eventsource.Next) (any, error) {
	l := m.log.With(
		"event-type", hctx.EventType(),
		"event-id", eventsource.EventIDFromContext(ctx),
		"aggregate-id", eventsource.AggregateIDFromContext(ctx),
		"version", eventsource.VersionFromContext(ctx),
	)

	l.DebugContext(ctx, "event processing started")

	out, err := next(ctx, hctx)

	if err != nil {
		l.ErrorContext(ctx, "error processing event", "error", err)
	} else {
		l.DebugContext(ctx, "event processed successfully")
	}

	return out, err
}

var _ eventsource.Middleware = (*Middleware)(nil)
