package enrollment_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
	testutil "github.com/trezcool/admissions/tests"
)

func TestBackfillRunner_Run(t *testing.T) {
	f := newFixture(t)
	t0 := time.Now().Add(-time.Hour)
	first := testutil.CreateLearner(t, f.learners, "Ada", "Lovelace", "a@x.com", learner.StatusPending, t0)
	second := testutil.CreateLearner(t, f.learners, "Bob", "Marley", "", learner.StatusPending, t0.Add(time.Minute))
	third := testutil.CreateLearner(t, f.learners, "Cy", "Twombly", "c@x.com", learner.StatusPending, t0.Add(2*time.Minute))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.NotificationFailures)
	assert.Equal(t, "processed: 2, skipped: 1, failed: 0, notification failures: 0", report.String())

	require.Len(t, report.Entries, 3)
	assert.Equal(t, first.ID, report.Entries[0].LearnerID)
	assert.Equal(t, enrollment.OutcomeApplied, report.Entries[0].Outcome)
	assert.True(t, report.Entries[0].Notified)
	assert.Equal(t, second.ID, report.Entries[1].LearnerID)
	assert.Equal(t, enrollment.OutcomeBlockedMissingData, report.Entries[1].Outcome)
	assert.NotEmpty(t, report.Entries[1].Error)
	assert.Equal(t, third.ID, report.Entries[2].LearnerID)
	assert.Equal(t, enrollment.OutcomeApplied, report.Entries[2].Outcome)

	for _, l := range []learner.Learner{first, third} {
		stored := f.learner(t, l.ID)
		assert.Equal(t, learner.StatusAccepted, stored.Status)
		assert.True(t, stored.IsLinked())
	}
	stored := f.learner(t, second.ID)
	assert.Equal(t, learner.StatusPending, stored.Status)
	assert.False(t, stored.IsLinked())

	require.Equal(t, 2, f.notifier.Count())
	assert.NotEqual(t, f.notifier.Deliveries[0].TempPassword, f.notifier.Deliveries[1].TempPassword)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	// only the learner with no contact is selected again
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	report, err = f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, f.notifier.Count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBackfillRunner_Run_sharedEmail(t *testing.T) {
	f := newFixture(t)
	t0 := time.Now().Add(-time.Hour)
	a := testutil.CreateLearner(t, f.learners, "Ada", "Lovelace", "dup@x.com", learner.StatusPending, t0)
	b := testutil.CreateLearner(t, f.learners, "Bob", "Marley", "dup@x.com", learner.StatusPending, t0.Add(time.Minute))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, enrollment.OutcomeBlockedDuplicate, report.Entries[1].Outcome)

	storedA := f.learner(t, a.ID)
	assert.Equal(t, learner.StatusAccepted, storedA.Status)
	assert.Equal(t, report.Entries[0].AccountID, storedA.LinkedAccountID)

	storedB := f.learner(t, b.ID)
	assert.Equal(t, learner.StatusPending, storedB.Status)
	assert.False(t, storedB.IsLinked())
	assert.Equal(t, 1, f.notifier.Count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBackfillRunner_Run_selection(t *testing.T) {
	f := newFixture(t)
	acc := testutil.CreateUser(t, f.users, "Linked", "linked", "linked@x.com", "", user.LearnerRoles, true)
	_, err := f.learners.CreateLearner(context.Background(), learner.Learner{
		FirstName:       "Linked",
		Address:         &learner.Address{Email: "linked@x.com"},
		Status:          learner.StatusAccepted,
		LinkedAccountID: acc.ID,
	})
	require.NoError(t, err)
	testutil.CreateLearner(t, f.learners, "Rejected", "One", "r@x.com", learner.StatusRejected)
	drift := testutil.CreateLearner(t, f.learners, "Accepted", "Unlinked", "u@x.com", learner.StatusAccepted)
	testutil.ExpectTxs(f.mock, 1)

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, drift.ID, report.Entries[0].LearnerID)
	assert.Equal(t, 1, report.Processed)

	stored := f.learner(t, drift.ID)
	assert.Equal(t, learner.StatusAccepted, stored.Status)
	assert.True(t, stored.IsLinked())
	assert.False(t, f.accountExists("r@x.com"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBackfillRunner_Run_failures(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("mailbox unavailable")
	t0 := time.Now().Add(-time.Hour)
	broken := testutil.CreateLearner(t, f.learners, "Ada", "Lovelace", "a@x.com", learner.StatusPending, t0)
	ok := testutil.CreateLearner(t, f.learners, "Bob", "Marley", "b@x.com", learner.StatusPending, t0.Add(time.Minute))

	f.learners = &linkFailingRepo{Repository: f.learners, failID: broken.ID, err: sql.ErrConnDone}
	db, mock := testutil.NewMockDB(t)
	f.build(t, db)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.NotificationFailures)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, enrollment.OutcomeFailedRetryable, report.Entries[0].Outcome)
	assert.False(t, report.Entries[1].Notified)
	assert.Contains(t, report.Entries[1].Error, "mailbox unavailable")

	assert.Equal(t, learner.StatusPending, f.learner(t, broken.ID).Status)
	assert.Equal(t, learner.StatusAccepted, f.learner(t, ok.ID).Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillRunner_Run_cancelled(t *testing.T) {
	f := newFixture(t)
	testutil.CreateLearner(t, f.learners, "Ada", "Lovelace", "a@x.com", learner.StatusPending)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.runner.Run(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.Empty(t, report.Entries)
	assert.Zero(t, f.notifier.Count())
}

func TestBackfillRunner_Run_lostLink(t *testing.T) {
	f := newFixture(t)
	l := testutil.CreateLearner(t, f.learners, "Ada", "Lovelace", "a@x.com", learner.StatusAccepted)
	f.learners = &staleWriteRepo{Repository: f.learners}
	db, mock := testutil.NewMockDB(t)
	f.build(t, db)
	mock.ExpectBegin()
	mock.ExpectRollback()

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, enrollment.OutcomeAlreadyDone, report.Entries[0].Outcome)
	assert.Zero(t, f.notifier.Count())
	assert.False(t, f.learner(t, l.ID).IsLinked())
	assert.NoError(t, mock.ExpectationsWereMet())
}
