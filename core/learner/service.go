package learner

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
)

var (
	ErrNotFound = errors.New("learner not found")

	nowFunc = time.Now // mockable
)

type (
	// Repository persists learners and their address. Every method runs on exec[0] when given.
	Repository interface {
		// CreateLearner assigns a new ID and stores the learner with its address.
		CreateLearner(ctx context.Context, l Learner, exec ...core.DBExecutor) (Learner, error)
		GetLearner(ctx context.Context, id string, exec ...core.DBExecutor) (Learner, error)
		// GetLearnerForUpdate reads the learner and locks its row until the transaction ends.
		GetLearnerForUpdate(ctx context.Context, id string, tx core.DBExecutor) (Learner, error)
		// QueryUnprovisioned lists learners with no linked account that were not rejected, oldest first.
		QueryUnprovisioned(ctx context.Context, exec ...core.DBExecutor) ([]Learner, error)
		// UpdateStatus moves the learner from `from` to `to`; false when its status was not `from`.
		UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time, exec ...core.DBExecutor) (bool, error)
		// LinkAccount links an account and sets the status to `to`, only if the learner is still
		// unlinked and in one of the `from` statuses; false otherwise.
		LinkAccount(ctx context.Context, id, accountID string, from []Status, to Status, at time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// Register stores a validated self-registration as a pending learner with no account.
func (svc *Service) Register(ctx context.Context, nl NewLearner) (Learner, error) {
	now := nowFunc().UTC()
	l := Learner{
		FirstName: nl.FirstName,
		LastName:  nl.LastName,
		Program:   nl.Program,
		Address: &Address{
			Email:   nl.Email,
			Phone:   nl.Phone,
			Line1:   nl.Line1,
			Line2:   nl.Line2,
			City:    nl.City,
			Country: nl.Country,
		},
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created Learner
	err := core.WithTx(ctx, svc.db, nil, func(tx core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateLearner(ctx, l, tx)
		return err
	})
	if err != nil {
		return Learner{}, errors.Wrap(err, "registering learner")
	}
	return created, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Learner, error) {
	return svc.repo.GetLearner(ctx, id)
}
