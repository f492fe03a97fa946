package core

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor runs queries; satisfied by both *sqlx.DB and *sqlx.Tx so repositories
	// can join the caller's transaction.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

// Tx is the transaction handed to WithTx callbacks.
type Tx struct {
	*sqlx.Tx

	mu     sync.Mutex
	onDone []func()
}

var _ DBTransactor = (*Tx)(nil) // interface compliance check

// OnDone registers fn to run once the transaction is committed or rolled back, in reverse order.
// Stores without row locks of their own use it to release them.
func (tx *Tx) OnDone(fn func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onDone = append(tx.onDone, fn)
}

func (tx *Tx) Commit() error {
	defer tx.done()
	return tx.Tx.Commit()
}

func (tx *Tx) Rollback() error {
	defer tx.done()
	return tx.Tx.Rollback()
}

func (tx *Tx) done() {
	tx.mu.Lock()
	fns := tx.onDone
	tx.onDone = nil
	tx.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// WithTx runs fn inside a single transaction.
// The transaction is rolled back if fn returns an error or panics (the panic is re-raised), committed otherwise.
func WithTx(ctx context.Context, db DB, opts *sql.TxOptions, fn func(tx DBExecutor) error) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	return runTx(&Tx{Tx: tx}, fn)
}

func runTx(tx DBTransactor, fn func(tx DBExecutor) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Wrapf(err, "rolling back transaction: %v", rbErr)
			}
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}
