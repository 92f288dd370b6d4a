package eventsource

import (
	"context"
	"errors"
)

var (
	// ErrUnitOfWorkActive is returned by Begin on an already-active scope.
	ErrUnitOfWorkActive = errors.New("unit of work already active")

	// ErrUnitOfWorkNotActive is returned by Commit and Rollback outside an
	// active scope, including after the scope has finished.
	ErrUnitOfWorkNotActive = errors.New("unit of work not active")
)

// UnitOfWork groups one or more persistence operations into a single
// commit/rollback boundary. The state machine is
// not-started -> active -> committed|rolled-back; a unit of work is not
// reusable after it finishes.
//
// Only a transactional backend can guarantee that Rollback undoes the store
// mutations performed inside the scope. MemoryUnitOfWork explicitly cannot;
// see its documentation.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithUnitOfWork runs fn inside the unit of work: Begin first, Commit on
// success, Rollback on failure or panic (the error or panic is propagated
// after the rollback attempt).
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) error {
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	finished := false
	defer func() {
		if !finished {
			// Panic escaping fn: roll back, then let it propagate.
			_ = uow.Rollback(ctx)
		}
	}()

	if err := fn(ctx); err != nil {
		finished = true
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	finished = true
	return uow.Commit(ctx)
}

// Operation is a single unit-of-work step producing an output.
type Operation func(ctx context.Context) (any, error)

// ExecuteOperations runs the operations in order inside one unit-of-work
// scope and returns all outputs, or the first failure. With a transactional
// backend, no operation's effects survive a failure.
func ExecuteOperations(ctx context.Context, uow UnitOfWork, operations []Operation) Result[[]any] {
	outputs := make([]any, 0, len(operations))

	err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
		for _, op := range operations {
			out, err := op(ctx)
			if err != nil {
				return err
			}
			outputs = append(outputs, out)
		}
		return nil
	})
	if err != nil {
		return Failure[[]any](err)
	}
	return Success(outputs)
}
