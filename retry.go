package eventsource

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions configures RetryMiddleware. Constructed and injected by the
// composition root.
type RetryOptions struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// permanently failing handler is called MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after every retry.
	BackoffFactor float64

	// RetryableErrors limits retries to failures matching (errors.Is) one of
	// these targets. Empty means every failure kind is retried.
	RetryableErrors []error
}

// DefaultRetryOptions returns the defaults: 3 retries, 100ms base delay,
// factor 2, capped at 30s, all failure kinds retryable.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:    3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryMiddleware retries failing handlers with exponential backoff. The
// backoff wait is context-aware: cancelling the context aborts the wait and
// fails the chain with the context error, never with a silent extra retry.
type RetryMiddleware struct {
	opts RetryOptions
	log  *slog.Logger
}

// NewRetryMiddleware creates the middleware. A nil logger falls back to
// slog.Default().
func NewRetryMiddleware(opts RetryOptions, log *slog.Logger) *RetryMiddleware {
	if log == nil {
		log = slog.Default()
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 1
	}
	return &RetryMiddleware{opts: opts, log: log}
}

func (m *RetryMiddleware) Process(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.BaseDelay
	b.MaxInterval = m.opts.MaxDelay
	b.Multiplier = m.opts.BackoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() (any, error) {
		out, err := next(ctx, hctx)
		if err == nil {
			return out, nil
		}
		if !m.retryable(err) {
			return out, backoff.Permanent(err)
		}

		attempt++
		if attempt > m.opts.MaxRetries {
			// The backoff policy stops here anyway; skip the misleading
			// "retrying" log line for the final failure.
			return out, err
		}
		m.log.Warn("event handler failed, retrying",
			slog.String("event_type", hctx.EventType()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", m.opts.MaxRetries),
			slog.Any("error", err),
		)
		return out, err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.opts.MaxRetries)), ctx)
	return backoff.RetryWithData(operation, policy)
}

func (m *RetryMiddleware) retryable(err error) bool {
	if len(m.opts.RetryableErrors) == 0 {
		return true
	}
	for _, target := range m.opts.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ Middleware = (*RetryMiddleware)(nil)
