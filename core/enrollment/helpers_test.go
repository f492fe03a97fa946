package enrollment_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
	inmemdb "github.com/trezcool/admissions/storage/database/inmem"
	testutil "github.com/trezcool/admissions/tests"
)

type fixture struct {
	mock     sqlmock.Sqlmock
	users    user.Repository
	learners learner.Repository
	notifier *testutil.RecordingNotifier
	svc      *enrollment.Service
	runner   *enrollment.BackfillRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := testutil.NewMockDB(t)
	mem := inmemdb.NewDB()
	f := &fixture{
		mock:     mock,
		users:    inmemdb.NewUserRepository(mem),
		learners: inmemdb.NewLearnerRepository(mem),
		notifier: &testutil.RecordingNotifier{},
	}
	f.build(t, db)
	return f
}

// build wires the service and the runner, so tests can swap a repository first.
func (f *fixture) build(t *testing.T, db core.DB) {
	t.Helper()
	prov := enrollment.NewProvisioner(f.users, f.learners, validator.New(), testutil.NewConfig())
	var err error
	f.svc, err = enrollment.NewService(db, f.learners, prov, f.notifier, &testutil.Logger{})
	require.NoError(t, err)
	f.runner, err = enrollment.NewBackfillRunner(db, f.learners, prov, f.notifier, &testutil.Logger{})
	require.NoError(t, err)
}

func (f *fixture) learner(t *testing.T, id string) learner.Learner {
	t.Helper()
	l, err := f.learners.GetLearner(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (f *fixture) accountExists(email string) bool {
	_, err := f.users.GetUser(context.Background(), user.GetFilter{Email: email})
	return err == nil
}

// linkFailingRepo fails LinkAccount for one learner.
type linkFailingRepo struct {
	learner.Repository
	failID string
	err    error
}

func (r linkFailingRepo) LinkAccount(
	ctx context.Context,
	id, accountID string,
	from []learner.Status,
	to learner.Status,
	at time.Time,
	exec ...core.DBExecutor,
) (bool, error) {
	if id == r.failID {
		return false, r.err
	}
	return r.Repository.LinkAccount(ctx, id, accountID, from, to, at, exec...)
}

type recordingRejections struct {
	mu       sync.Mutex
	learners []learner.Learner
}

func (r *recordingRejections) NotifyRejected(l learner.Learner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learners = append(r.learners, l)
}

// staleWriteRepo loses every conditional write, as if another transaction had decided the learner first.
type staleWriteRepo struct {
	learner.Repository
}

func (r *staleWriteRepo) UpdateStatus(context.Context, string, learner.Status, learner.Status, time.Time, ...core.DBExecutor) (bool, error) {
	return false, nil
}

func (r *staleWriteRepo) LinkAccount(context.Context, string, string, []learner.Status, learner.Status, time.Time, ...core.DBExecutor) (bool, error) {
	return false, nil
}

// countingUsers counts the accounts created through it.
type countingUsers struct {
	user.Repository
	created int32
}

func (r *countingUsers) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr, err := r.Repository.CreateUser(ctx, usr, exec...)
	if err == nil {
		atomic.AddInt32(&r.created, 1)
	}
	return usr, err
}

func (r *countingUsers) count() int { return int(atomic.LoadInt32(&r.created)) }
