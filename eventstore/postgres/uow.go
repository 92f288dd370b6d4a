package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/eventsource"
)

// UnitOfWork is a transactional UnitOfWork over a pgx transaction. Stores
// bound to the scope's transaction via Tx participate in it, so Rollback
// truly undoes every mutation made inside the scope.
type UnitOfWork struct {
	mu   sync.Mutex
	pool *pgxpool.Pool
	tx   pgx.Tx
	done bool
}

// NewUnitOfWork creates a unit of work that opens its transaction on pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tx != nil || u.done {
		return eventsource.ErrUnitOfWorkActive
	}

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}
	u.tx = tx
	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tx == nil {
		return eventsource.ErrUnitOfWorkNotActive
	}

	err := u.tx.Commit(ctx)
	u.tx = nil
	u.done = true
	return err
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tx == nil {
		return eventsource.ErrUnitOfWorkNotActive
	}

	err := u.tx.Rollback(ctx)
	u.tx = nil
	u.done = true
	return err
}

// Tx exposes the active transaction so stores can bind to it with WithTx.
// Returns nil outside an active scope.
func (u *UnitOfWork) Tx() pgx.Tx {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx
}

var _ eventsource.UnitOfWork = (*UnitOfWork)(nil)
