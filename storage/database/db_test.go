package database

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
)

func testConfig() *core.Config {
	return &core.Config{
		Database: core.DatabaseConfig{
			Engine:        "postgres",
			Host:          "db.local",
			Port:          5432,
			Name:          "admissions",
			User:          "app",
			Password:      "s3cret",
			AdminUser:     "postgres",
			AdminPassword: "root",
			DisableTLS:    true,
		},
	}
}

func TestDSN(t *testing.T) {
	conf := testConfig()

	tests := []struct {
		name     string
		dbName   string
		admin    bool
		tls      bool
		wantUser string
		wantSSL  string
	}{
		{name: "app user", dbName: "admissions", wantUser: "app", wantSSL: "disable"},
		{name: "admin user", dbName: "postgres", admin: true, wantUser: "postgres", wantSSL: "disable"},
		{name: "tls", dbName: "admissions", tls: true, wantUser: "app", wantSSL: "require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = !tt.tls
			u, err := url.Parse(dsn(tt.dbName, tt.admin, conf))
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db.local:5432", u.Host)
			assert.Equal(t, "/"+tt.dbName, u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestCreateAppUser(t *testing.T) {
	conf := testConfig()

	t.Run("exists", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT true FROM pg_roles WHERE rolname = \$1`).
			WithArgs("app").
			WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

		require.NoError(t, createAppUser(db, conf))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("created", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT true FROM pg_roles`).
			WithArgs("app").
			WillReturnRows(sqlmock.NewRows([]string{"bool"}))
		mock.ExpectExec(`CREATE USER "app" CREATEDB ENCRYPTED PASSWORD 's3cret'`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, createAppUser(db, conf))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateDB(t *testing.T) {
	conf := testConfig()
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT true FROM pg_database WHERE datname = \$1`).
		WithArgs("admissions").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}))
	mock.ExpectExec(`CREATE DATABASE "admissions"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, createDB(db, conf))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	pingDelay = time.Millisecond
	defer func() { pingDelay = 100 * time.Millisecond }()

	db, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	require.NoError(t, ping(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing_cancelled(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("starting up"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, ping(ctx, db))
}
