package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
)

type learnerRepository struct {
	db *DB
}

var _ learner.Repository = (*learnerRepository)(nil) // interface compliance check

func NewLearnerRepository(db *DB) *learnerRepository {
	return &learnerRepository{db: db}
}

// copyLearner detaches the address so callers cannot mutate stored records.
func copyLearner(l learner.Learner) learner.Learner {
	if l.Address != nil {
		addr := *l.Address
		l.Address = &addr
	}
	return l
}

func (repo *learnerRepository) CreateLearner(_ context.Context, l learner.Learner, _ ...core.DBExecutor) (learner.Learner, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	l.ID = uuid.New().String()
	if l.Status == "" {
		l.Status = learner.StatusPending
	}
	repo.db.learners[l.ID] = copyLearner(l)
	return copyLearner(l), nil
}

func (repo *learnerRepository) GetLearner(_ context.Context, id string, _ ...core.DBExecutor) (learner.Learner, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.learners[id]; ok {
		return copyLearner(l), nil
	}
	return learner.Learner{}, learner.ErrNotFound
}

func (repo *learnerRepository) GetLearnerForUpdate(ctx context.Context, id string, tx core.DBExecutor) (learner.Learner, error) {
	if t, ok := tx.(*core.Tx); ok {
		if err := repo.db.lockRow(ctx, id, t); err != nil {
			return learner.Learner{}, err
		}
	}
	return repo.GetLearner(ctx, id, tx)
}

func (repo *learnerRepository) QueryUnprovisioned(_ context.Context, _ ...core.DBExecutor) ([]learner.Learner, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	learners := make([]learner.Learner, 0)
	for _, l := range repo.db.learners {
		if !l.IsLinked() && l.Status != learner.StatusRejected {
			learners = append(learners, copyLearner(l))
		}
	}
	sort.SliceStable(learners, func(i, j int) bool {
		if learners[i].CreatedAt.Equal(learners[j].CreatedAt) {
			return learners[i].ID < learners[j].ID
		}
		return learners[i].CreatedAt.Before(learners[j].CreatedAt)
	})
	return learners, nil
}

func (repo *learnerRepository) UpdateStatus(_ context.Context, id string, from, to learner.Status, at time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	l, ok := repo.db.learners[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	l.DecidedAt = at
	l.UpdatedAt = at
	repo.db.learners[id] = l
	return true, nil
}

func (repo *learnerRepository) LinkAccount(_ context.Context, id, accountID string, from []learner.Status, to learner.Status, at time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	l, ok := repo.db.learners[id]
	if !ok || l.IsLinked() || !hasStatus(from, l.Status) {
		return false, nil
	}
	for _, other := range repo.db.learners {
		if other.LinkedAccountID == accountID {
			return false, nil
		}
	}
	l.LinkedAccountID = accountID
	l.Status = to
	if l.DecidedAt.IsZero() {
		l.DecidedAt = at
	}
	l.UpdatedAt = at
	repo.db.learners[id] = l
	return true, nil
}

func hasStatus(statuses []learner.Status, s learner.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
