package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

const (
	userColumns = `id, name, username, email, is_active, must_change_password, roles, password_hash, created_at, updated_at, last_login`

	userUsernameKey = "user_username_key"
	userEmailKey    = "user_email_key"
)

type userRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Username           string         `db:"username"`
	Email              null.String    `db:"email"`
	IsActive           bool           `db:"is_active"`
	MustChangePassword bool           `db:"must_change_password"`
	Roles              pq.StringArray `db:"roles"`
	PasswordHash       []byte         `db:"password_hash"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	LastLogin          null.Time      `db:"last_login"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:                 usr.ID,
		Name:               usr.Name,
		Username:           usr.Username,
		Email:              null.NewString(usr.Email, usr.Email != ""),
		IsActive:           usr.IsActive,
		MustChangePassword: usr.MustChangePassword,
		Roles:              roles,
		PasswordHash:       usr.PasswordHash,
		CreatedAt:          usr.CreatedAt.UTC(),
		UpdatedAt:          usr.UpdatedAt.UTC(),
		LastLogin:          null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:                 row.ID,
		Name:               row.Name,
		Username:           row.Username,
		Email:              row.Email.String,
		IsActive:           row.IsActive,
		MustChangePassword: row.MustChangePassword,
		Roles:              []string(row.Roles),
		PasswordHash:       row.PasswordHash,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
		LastLogin:          row.LastLogin.Time.UTC(),
	}
}

// trapUniqueErr maps unique violations to user.ErrUsernameExists / user.ErrEmailExists
func (repo userRepository) trapUniqueErr(err error, msg string) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case userUsernameKey:
			return user.ErrUsernameExists
		case userEmailKey:
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error {
	var found struct {
		Username string      `db:"username"`
		Email    null.String `db:"email"`
	}
	q := `SELECT username, email FROM "user" WHERE username = $1 OR email = $2 LIMIT 1`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &found, q, username, null.NewString(email, email != ""))
	if err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if found.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.toRow(usr)

	q := `INSERT INTO "user" (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.MustChangePassword,
		row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var where string
	var arg string

	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		where, arg = "id = $1", filter.ID
	case filter.Username != "":
		where, arg = "username = $1", filter.Username
	case filter.Email != "":
		where, arg = "email = $1", filter.Email
	case filter.UsernameOrEmail != "":
		where, arg = "username = $1 OR email = $1", filter.UsernameOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE ` + where + ` LIMIT 1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row := repo.toRow(usr)

	q := `UPDATE "user" SET name = $2, username = $3, email = $4, is_active = $5, must_change_password = $6,
		roles = $7, password_hash = $8, updated_at = $9, last_login = $10 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.MustChangePassword,
		row.Roles, row.PasswordHash, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}
