// Package testutil holds fixtures shared by the service, API and CLI tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd, 4); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateLearner stores a learner; an empty email leaves it without an address.
func CreateLearner(
	t *testing.T,
	repo learner.Repository,
	firstName, lastName, email string,
	status learner.Status,
	createdAt ...time.Time,
) learner.Learner {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	l := learner.Learner{
		FirstName: firstName,
		LastName:  lastName,
		Program:   "Backend Engineering",
		Status:    status,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if email != "" {
		l.Address = &learner.Address{Email: email, City: "Kinshasa", Country: "CD"}
	}
	l, err := repo.CreateLearner(context.Background(), l)
	if err != nil {
		t.Fatalf("createLearner() failed: %v", err)
	}
	return l
}

// NewMockDB returns a sqlmock backed database; tests declare the Begin/Commit/Rollback they expect.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// ExpectTxs expects n transactions that all commit.
func ExpectTxs(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:         "Admissions",
		Env:             "test",
		TestMode:        true,
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:3000",
	}
	conf.Server.JWTExpirationDelta = 15 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Enrollment.TempPasswordLength = 12
	conf.Enrollment.BcryptCost = 4
	conf.Enrollment.LoginPath = "/login"
	conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	conf.PasswordResetPath = "/password-reset"
	conf.SetDefaultFromEmail("Admissions <noreply@example.com>")
	return conf
}

// Logger discards everything.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}

// Delivery is a credentials notification captured by RecordingNotifier.
type Delivery struct {
	Email, FirstName, LastName, Username, TempPassword string
}

// RecordingNotifier records credentials deliveries and fails them when Err is set.
type RecordingNotifier struct {
	mu         sync.Mutex
	Err        error
	Deliveries []Delivery
}

func (n *RecordingNotifier) Deliver(_ context.Context, email, firstName, lastName, username, tempPassword string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Deliveries = append(n.Deliveries, Delivery{email, firstName, lastName, username, tempPassword})
	return n.Err
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Deliveries)
}
