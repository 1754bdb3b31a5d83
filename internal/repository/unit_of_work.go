package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repositories groups the repositories bound to one database handle.
type Repositories interface {
	Users() UserRepository
	Credentials() CredentialRepository
	Nonces() NonceRepository
	Bridges() BridgeRepository
}

// UnitOfWork is a Repositories set that can run a function atomically.
type UnitOfWork interface {
	Repositories
	// Atomic runs fn so that all of its writes commit or roll back together.
	// fn receives a UnitOfWork bound to the transaction; nested Atomic calls
	// on it join the transaction or open a savepoint depending on
	// configuration. When Transactional is false fn runs directly.
	Atomic(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	// Transactional is false for bulk-access connections that cannot run
	// transactions. Callers must then issue their reads before Atomic.
	Transactional() bool
}

// NestedTxMode controls what a nested Atomic call does.
type NestedTxMode string

const (
	NestedJoin      NestedTxMode = "join"
	NestedSavepoint NestedTxMode = "savepoint"
)

// UnitOfWorkOptions configures a PostgresUnitOfWork.
type UnitOfWorkOptions struct {
	// BulkMode disables transactions entirely.
	BulkMode bool
	Nested   NestedTxMode
}

// PostgresUnitOfWork binds the pgx repositories to a pool or a transaction.
type PostgresUnitOfWork struct {
	db   TxBeginner
	inTx bool
	opts UnitOfWorkOptions
}

// NewPostgresUnitOfWork builds a root unit of work over db.
func NewPostgresUnitOfWork(db TxBeginner, opts UnitOfWorkOptions) *PostgresUnitOfWork {
	if opts.Nested == "" {
		opts.Nested = NestedJoin
	}
	return &PostgresUnitOfWork{db: db, opts: opts}
}

func (u *PostgresUnitOfWork) Users() UserRepository             { return NewUserRepository(u.db) }
func (u *PostgresUnitOfWork) Credentials() CredentialRepository { return NewCredentialRepository(u.db) }
func (u *PostgresUnitOfWork) Nonces() NonceRepository           { return NewNonceRepository(u.db) }
func (u *PostgresUnitOfWork) Bridges() BridgeRepository         { return NewBridgeRepository(u.db) }

func (u *PostgresUnitOfWork) Transactional() bool {
	return !u.opts.BulkMode
}

// Atomic begins a transaction (or savepoint), runs fn, then commits on
// success or rolls back on error or panic. Panics are rethrown.
func (u *PostgresUnitOfWork) Atomic(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) (err error) {
	if !u.Transactional() {
		return fn(ctx, u)
	}
	if u.inTx && u.opts.Nested == NestedJoin {
		return fn(ctx, u)
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("commit transaction: %w", commitErr)
		}
	}()

	err = fn(ctx, &PostgresUnitOfWork{db: tx, inTx: true, opts: u.opts})
	return err
}

var _ TxBeginner = (pgx.Tx)(nil)
