// Package inmemdb keeps repositories in memory, for tests. There are no transactions:
// writes are applied immediately and a rollback undoes nothing.
// GetLearnerForUpdate is the only row lock. It is held until the *core.Tx it was taken in ends,
// and it is not taken at all under any other executor.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
)

type DB struct {
	mu       sync.RWMutex
	users    map[string]user.User
	learners map[string]learner.Learner

	locksMu sync.Mutex
	locks   map[string]chan struct{} // {learnerID: semaphore}
}

func NewDB() *DB {
	return &DB{
		users:    make(map[string]user.User),
		learners: make(map[string]learner.Learner),
		locks:    make(map[string]chan struct{}),
	}
}

// Reset drops every record.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]user.User)
	db.learners = make(map[string]learner.Learner)
}

// lockRow blocks until the row lock of id is free or ctx is done, then holds it until tx ends.
// A transaction must not lock the same row twice.
func (db *DB) lockRow(ctx context.Context, id string, tx *core.Tx) error {
	db.locksMu.Lock()
	sem, ok := db.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		db.locks[id] = sem
	}
	db.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		tx.OnDone(func() { <-sem })
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
