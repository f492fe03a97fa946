package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
)

var nowFunc = time.Now // mockable

// Provisioned is the result of a successful provisioning.
// TempPassword is the only copy of the plaintext secret; it is handed to the notifier and dropped.
type Provisioned struct {
	Learner      learner.Learner
	Account      user.User
	TempPassword string
}

// Provisioner creates the login account of a learner and links it.
type Provisioner struct {
	users      user.Repository
	learners   learner.Repository
	validate   *validator.Validate
	secretLen  int
	bcryptCost int
	genSecret  func(length int, attrs ...string) (string, error)
}

func NewProvisioner(
	users user.Repository,
	learners learner.Repository,
	validate *validator.Validate,
	conf *core.Config,
) *Provisioner {
	return &Provisioner{
		users:      users,
		learners:   learners,
		validate:   validate,
		secretLen:  conf.Enrollment.TempPasswordLength,
		bcryptCost: conf.Enrollment.BcryptCost,
		genSecret:  GenerateSecret,
	}
}

// ContactEmail returns the learner's cleaned email, or ErrMissingContact when it is absent or malformed.
func (p *Provisioner) ContactEmail(l learner.Learner) (string, error) {
	email := l.ContactEmail()
	if email == "" || p.validate.Var(email, "email") != nil {
		return "", ErrMissingContact
	}
	return email, nil
}

// Provision creates a learner account for l, then links it and sets the status to accepted,
// provided the learner is still unlinked and in one of the from statuses.
// It must run inside tx; the caller commits before notifying.
func (p *Provisioner) Provision(ctx context.Context, l learner.Learner, from []learner.Status, tx core.DBExecutor) (Provisioned, error) {
	email, err := p.ContactEmail(l)
	if err != nil {
		return Provisioned{}, err
	}

	// the username is the email: both must be free
	if err = p.users.CheckUniqueness(ctx, email, email, tx); err != nil {
		return Provisioned{}, trapDuplicate(err)
	}

	secret, err := p.genSecret(p.secretLen, l.FullName(), email)
	if err != nil {
		return Provisioned{}, err
	}

	now := nowFunc().UTC()
	acc := user.User{
		Name:               l.FullName(),
		Username:           email,
		Email:              email,
		IsActive:           true,
		MustChangePassword: true,
		Roles:              []string{user.RoleLearner},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = acc.SetPassword(secret, p.bcryptCost); err != nil {
		return Provisioned{}, errors.Wrap(err, "hashing temporary password")
	}
	if acc, err = p.users.CreateUser(ctx, acc, tx); err != nil {
		return Provisioned{}, trapDuplicate(err)
	}

	ok, err := p.learners.LinkAccount(ctx, l.ID, acc.ID, from, learner.StatusAccepted, now, tx)
	if err != nil {
		return Provisioned{}, err
	}
	if !ok {
		return Provisioned{}, ErrAlreadyProcessed
	}

	l.LinkedAccountID = acc.ID
	l.Status = learner.StatusAccepted
	if l.DecidedAt.IsZero() {
		l.DecidedAt = now
	}
	l.UpdatedAt = now
	return Provisioned{Learner: l, Account: acc, TempPassword: secret}, nil
}

func trapDuplicate(err error) error {
	if errors.Is(err, user.ErrEmailExists) || errors.Is(err, user.ErrUsernameExists) {
		return ErrDuplicateAccount
	}
	return errors.Wrap(err, "creating learner account")
}
