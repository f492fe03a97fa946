package enrollment

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
)

type (
	// Report sums up a backfill run.
	Report struct {
		Processed            int           `json:"processed"`
		Skipped              int           `json:"skipped"`
		Failed               int           `json:"failed"`
		NotificationFailures int           `json:"notification_failures"`
		Entries              []ReportEntry `json:"entries"`
	}

	ReportEntry struct {
		LearnerID string  `json:"learner_id"`
		Outcome   Outcome `json:"outcome"`
		AccountID string  `json:"account_id,omitempty"`
		Notified  bool    `json:"notified"`
		Error     string  `json:"error,omitempty"`
	}
)

func (r Report) String() string {
	return fmt.Sprintf("processed: %d, skipped: %d, failed: %d, notification failures: %d",
		r.Processed, r.Skipped, r.Failed, r.NotificationFailures)
}

// BackfillRunner provisions every learner that has no account yet, one transaction per learner.
type BackfillRunner struct {
	db          core.DB
	learners    learner.Repository
	provisioner *Provisioner
	notifier    CredentialNotifier
	logger      core.Logger
}

func NewBackfillRunner(
	db core.DB,
	learners learner.Repository,
	provisioner *Provisioner,
	notifier CredentialNotifier,
	logger core.Logger,
) (*BackfillRunner, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(learners, "learners"),
		vala.IsNotNil(provisioner, "provisioner"),
		vala.IsNotNil(notifier, "notifier"),
		vala.IsNotNil(logger, "logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating backfill runner")
	}
	return &BackfillRunner{
		db:          db,
		learners:    learners,
		provisioner: provisioner,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// Run scans the unprovisioned learners once. A learner's failure only rolls back its own transaction.
// Provisioned learners are accepted; pending ones with no email or a taken email are skipped and stay pending.
func (r *BackfillRunner) Run(ctx context.Context) (Report, error) {
	learners, err := r.learners.QueryUnprovisioned(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "selecting unprovisioned learners")
	}

	report := Report{Entries: make([]ReportEntry, 0, len(learners))}
	for _, l := range learners {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		entry := r.runOne(ctx, l.ID)
		switch entry.Outcome {
		case OutcomeApplied:
			report.Processed++
			if !entry.Notified {
				report.NotificationFailures++
			}
		case OutcomeFailedRetryable:
			report.Failed++
		default:
			report.Skipped++
		}
		report.Entries = append(report.Entries, entry)
	}

	r.logger.Info("backfill done: " + report.String())
	return report, nil
}

func (r *BackfillRunner) runOne(ctx context.Context, id string) ReportEntry {
	var prov Provisioned
	err := core.WithTx(ctx, r.db, nil, func(tx core.DBExecutor) error {
		l, err := r.learners.GetLearnerForUpdate(ctx, id, tx)
		if err != nil {
			return err
		}
		// linked or rejected since the selection
		if l.IsLinked() || l.Status == learner.StatusRejected {
			return ErrAlreadyProcessed
		}
		prov, err = r.provisioner.Provision(ctx, l, []learner.Status{learner.StatusPending, learner.StatusAccepted}, tx)
		return err
	})

	entry := ReportEntry{LearnerID: id, Outcome: OutcomeOf(err)}
	if err != nil {
		entry.Error = err.Error()
		if entry.Outcome == OutcomeFailedRetryable {
			r.logger.Error(fmt.Sprintf("backfilling learner %s: %v", id, err), err)
		} else {
			r.logger.Info(fmt.Sprintf("backfill skipped learner %s: %v", id, err))
		}
		return entry
	}

	entry.AccountID = prov.Account.ID
	if err = deliverCredentials(ctx, r.notifier, r.logger, prov); err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Notified = true
	return entry
}
