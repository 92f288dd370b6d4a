package eventsource

import (
	"context"
	"log/slog"
	"sync"
)

type uowState int

const (
	uowNotStarted uowState = iota
	uowActive
	uowCommitted
	uowRolledBack
)

func (s uowState) String() string {
	switch s {
	case uowNotStarted:
		return "not-started"
	case uowActive:
		return "active"
	case uowCommitted:
		return "committed"
	case uowRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// MemoryUnitOfWork tracks the unit-of-work state machine for the in-memory
// backends.
//
// Limitation: the in-memory stores apply mutations immediately, so Rollback
// marks the scope rolled back but CANNOT undo writes already made inside it.
// This is best-effort by design; use a transactional backend (for example
// the postgres adapter's UnitOfWork) when rollback must be real.
type MemoryUnitOfWork struct {
	mu    sync.Mutex
	state uowState
	log   *slog.Logger
}

// NewMemoryUnitOfWork creates a fresh unit of work. A nil logger falls back
// to slog.Default().
func NewMemoryUnitOfWork(log *slog.Logger) *MemoryUnitOfWork {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryUnitOfWork{log: log}
}

func (u *MemoryUnitOfWork) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowNotStarted {
		return ErrUnitOfWorkActive
	}
	u.state = uowActive
	return nil
}

func (u *MemoryUnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowActive {
		return ErrUnitOfWorkNotActive
	}
	u.state = uowCommitted
	return nil
}

func (u *MemoryUnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowActive {
		return ErrUnitOfWorkNotActive
	}
	u.state = uowRolledBack
	u.log.Warn("in-memory unit of work rolled back; mutations already applied inside the scope are not undone")
	return nil
}

// State reports the current state, mainly for tests and diagnostics.
func (u *MemoryUnitOfWork) State() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.String()
}

var _ UnitOfWork = (*MemoryUnitOfWork)(nil)
