// Package enrollment moves learners out of pending: acceptance provisions their login account,
// rejection closes their application. Both are terminal.
package enrollment

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
)

// AcceptResult describes an applied acceptance.
// Account is nil when the learner already had an account linked.
type AcceptResult struct {
	Learner   learner.Learner
	Account   *user.User
	Notified  bool
	NotifyErr error // wraps ErrNotificationDelivery
}

type Service struct {
	db          core.DB
	learners    learner.Repository
	provisioner *Provisioner
	notifier    CredentialNotifier
	rejections  RejectionNotifier
	logger      core.Logger
}

func NewService(
	db core.DB,
	learners learner.Repository,
	provisioner *Provisioner,
	notifier CredentialNotifier,
	logger core.Logger,
) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(learners, "learners"),
		vala.IsNotNil(provisioner, "provisioner"),
		vala.IsNotNil(notifier, "notifier"),
		vala.IsNotNil(logger, "logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating enrollment service")
	}
	return &Service{
		db:          db,
		learners:    learners,
		provisioner: provisioner,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// NotifyRejections enables the rejection notice sent after a successful Reject.
func (svc *Service) NotifyRejections(n RejectionNotifier) {
	svc.rejections = n
}

// Accept moves a pending learner to accepted, provisioning their account in the same transaction.
// The learner row stays locked from the status check to the commit.
// Credentials are delivered after commit; a delivery failure is reported in the result only.
func (svc *Service) Accept(ctx context.Context, id string, staff user.User) (AcceptResult, error) {
	var (
		res  AcceptResult
		prov *Provisioned
	)
	err := core.WithTx(ctx, svc.db, nil, func(tx core.DBExecutor) error {
		l, err := svc.learners.GetLearnerForUpdate(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = checkTransition(l.Status, learner.StatusAccepted); err != nil {
			return err
		}

		if l.IsLinked() {
			// pending with an account already linked: accept without a second account
			now := nowFunc().UTC()
			ok, err := svc.learners.UpdateStatus(ctx, l.ID, learner.StatusPending, learner.StatusAccepted, now, tx)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAlreadyProcessed
			}
			l.Status, l.DecidedAt, l.UpdatedAt = learner.StatusAccepted, now, now
			res.Learner = l
			return nil
		}

		p, err := svc.provisioner.Provision(ctx, l, []learner.Status{learner.StatusPending}, tx)
		if err != nil {
			return err
		}
		prov = &p
		res.Learner = p.Learner
		return nil
	})
	if err != nil {
		svc.logFailure(fmt.Sprintf("accepting learner %s", id), err)
		return AcceptResult{}, err
	}

	svc.logger.Info(fmt.Sprintf("learner %s accepted by %s", id, staff.Username))
	if prov == nil {
		svc.logger.Warn(fmt.Sprintf("learner %s already had account %s linked", id, res.Learner.LinkedAccountID))
		return res, nil
	}

	res.Account = &prov.Account
	res.NotifyErr = deliverCredentials(ctx, svc.notifier, svc.logger, *prov)
	res.Notified = res.NotifyErr == nil
	return res, nil
}

// Reject moves a pending learner to rejected with a single conditional write. No account is created.
func (svc *Service) Reject(ctx context.Context, id string, staff user.User) (learner.Learner, error) {
	var l learner.Learner
	err := core.WithTx(ctx, svc.db, nil, func(tx core.DBExecutor) error {
		var err error
		if l, err = svc.learners.GetLearnerForUpdate(ctx, id, tx); err != nil {
			return err
		}
		if err = checkTransition(l.Status, learner.StatusRejected); err != nil {
			return err
		}
		if l.IsLinked() {
			// an account was provisioned already, the learner can only be accepted
			return ErrAlreadyProcessed
		}

		now := nowFunc().UTC()
		ok, err := svc.learners.UpdateStatus(ctx, l.ID, learner.StatusPending, learner.StatusRejected, now, tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		l.Status, l.DecidedAt, l.UpdatedAt = learner.StatusRejected, now, now
		return nil
	})
	if err != nil {
		svc.logFailure(fmt.Sprintf("rejecting learner %s", id), err)
		return learner.Learner{}, err
	}

	svc.logger.Info(fmt.Sprintf("learner %s rejected by %s", id, staff.Username))
	if svc.rejections != nil {
		svc.rejections.NotifyRejected(l)
	}
	return l, nil
}

// deliverCredentials hands the credentials to the notifier. The secret is never logged.
func deliverCredentials(ctx context.Context, notifier CredentialNotifier, logger core.Logger, prov Provisioned) error {
	l, acc := prov.Learner, prov.Account
	if err := notifier.Deliver(ctx, acc.Email, l.FirstName, l.LastName, acc.Username, prov.TempPassword); err != nil {
		logger.Error(fmt.Sprintf("delivering credentials of account %s (learner %s): %v", acc.ID, l.ID, err), err)
		return errors.WithMessagef(ErrNotificationDelivery, "learner %s: %v", l.ID, err)
	}
	return nil
}

// logFailure logs unexpected errors; expected outcomes are logged as info.
func (svc *Service) logFailure(msg string, err error) {
	if OutcomeOf(err) == OutcomeFailedRetryable && !IsNotFound(err) {
		svc.logger.Error(fmt.Sprintf("%s: %v", msg, err), err)
		return
	}
	svc.logger.Info(fmt.Sprintf("%s: %v", msg, err))
}
