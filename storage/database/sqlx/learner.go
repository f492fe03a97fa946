package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
)

const learnerSelect = `SELECT l.id, l.first_name, l.last_name, l.program, l.enrollment_status, l.linked_account_id,
	l.decided_at, l.created_at, l.updated_at, a.learner_id IS NOT NULL AS has_address,
	a.email AS address_email, a.phone AS address_phone, a.line1 AS address_line1,
	a.line2 AS address_line2, a.city AS address_city, a.country AS address_country
FROM learner l LEFT JOIN learner_address a ON a.learner_id = l.id`

type learnerRow struct {
	ID              string      `db:"id"`
	FirstName       string      `db:"first_name"`
	LastName        string      `db:"last_name"`
	Program         string      `db:"program"`
	Status          string      `db:"enrollment_status"`
	LinkedAccountID null.String `db:"linked_account_id"`
	DecidedAt       null.Time   `db:"decided_at"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`

	HasAddress     bool        `db:"has_address"`
	AddressEmail   null.String `db:"address_email"`
	AddressPhone   null.String `db:"address_phone"`
	AddressLine1   null.String `db:"address_line1"`
	AddressLine2   null.String `db:"address_line2"`
	AddressCity    null.String `db:"address_city"`
	AddressCountry null.String `db:"address_country"`
}

type learnerRepository struct {
	exec core.DBExecutor
}

var _ learner.Repository = (*learnerRepository)(nil) // interface compliance check

func NewLearnerRepository(exec core.DBExecutor) *learnerRepository {
	return &learnerRepository{exec: exec}
}

func (repo learnerRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo learnerRepository) fromRow(row learnerRow) learner.Learner {
	l := learner.Learner{
		ID:              row.ID,
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		Program:         row.Program,
		Status:          learner.Status(row.Status),
		LinkedAccountID: row.LinkedAccountID.String,
		DecidedAt:       row.DecidedAt.Time.UTC(),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.HasAddress {
		l.Address = &learner.Address{
			Email:   row.AddressEmail.String,
			Phone:   row.AddressPhone.String,
			Line1:   row.AddressLine1.String,
			Line2:   row.AddressLine2.String,
			City:    row.AddressCity.String,
			Country: row.AddressCountry.String,
		}
	}
	return l
}

func (repo learnerRepository) fromRows(rows []learnerRow) []learner.Learner {
	learners := make([]learner.Learner, 0, len(rows))
	for _, row := range rows {
		learners = append(learners, repo.fromRow(row))
	}
	return learners
}

func statusStrings(statuses []learner.Status) []string {
	strs := make([]string, 0, len(statuses))
	for _, s := range statuses {
		strs = append(strs, string(s))
	}
	return strs
}

func (repo learnerRepository) CreateLearner(ctx context.Context, l learner.Learner, exec ...core.DBExecutor) (learner.Learner, error) {
	exe := repo.getExec(exec)
	l.ID = uuid.New().String()
	if l.Status == "" {
		l.Status = learner.StatusPending
	}

	q := `INSERT INTO learner (id, first_name, last_name, program, enrollment_status, linked_account_id,
		decided_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := exe.ExecContext(ctx, q,
		l.ID, l.FirstName, l.LastName, l.Program, string(l.Status),
		null.NewString(l.LinkedAccountID, l.LinkedAccountID != ""),
		null.NewTime(l.DecidedAt.UTC(), !l.DecidedAt.IsZero()),
		l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return learner.Learner{}, errors.Wrap(err, "inserting learner")
	}

	if addr := l.Address; addr != nil {
		q = `INSERT INTO learner_address (learner_id, email, phone, line1, line2, city, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err = exe.ExecContext(ctx, q, l.ID, addr.Email, addr.Phone, addr.Line1, addr.Line2, addr.City, addr.Country)
		if err != nil {
			return learner.Learner{}, errors.Wrap(err, "inserting learner address")
		}
	}
	return l, nil
}

func (repo learnerRepository) get(ctx context.Context, id, suffix string, exe core.DBExecutor) (learner.Learner, error) {
	if !isUUID(id) {
		return learner.Learner{}, learner.ErrNotFound
	}
	var row learnerRow
	if err := sqlx.GetContext(ctx, exe, &row, learnerSelect+` WHERE l.id = $1`+suffix, id); err != nil {
		return learner.Learner{}, trapNoRowsErr(err, learner.ErrNotFound, "finding learner")
	}
	return repo.fromRow(row), nil
}

func (repo learnerRepository) GetLearner(ctx context.Context, id string, exec ...core.DBExecutor) (learner.Learner, error) {
	return repo.get(ctx, id, "", repo.getExec(exec))
}

func (repo learnerRepository) GetLearnerForUpdate(ctx context.Context, id string, tx core.DBExecutor) (learner.Learner, error) {
	// the address sits on the nullable side of the join and cannot be locked
	return repo.get(ctx, id, ` FOR UPDATE OF l`, tx)
}

func (repo learnerRepository) QueryUnprovisioned(ctx context.Context, exec ...core.DBExecutor) ([]learner.Learner, error) {
	var rows []learnerRow
	q := learnerSelect + ` WHERE l.linked_account_id IS NULL AND l.enrollment_status <> $1 ORDER BY l.created_at, l.id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, string(learner.StatusRejected)); err != nil {
		return nil, errors.Wrap(err, "querying unprovisioned learners")
	}
	return repo.fromRows(rows), nil
}

func (repo learnerRepository) UpdateStatus(ctx context.Context, id string, from, to learner.Status, at time.Time, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	q := `UPDATE learner SET enrollment_status = $1, decided_at = $2, updated_at = $2
		WHERE id = $3 AND enrollment_status = $4`
	res, err := repo.getExec(exec).ExecContext(ctx, q, string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, errors.Wrap(err, "updating learner status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating learner status")
	}
	return n == 1, nil
}

func (repo learnerRepository) LinkAccount(
	ctx context.Context,
	id, accountID string,
	from []learner.Status,
	to learner.Status,
	at time.Time,
	exec ...core.DBExecutor,
) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	q := `UPDATE learner SET linked_account_id = $1, enrollment_status = $2,
		decided_at = COALESCE(decided_at, $3), updated_at = $3
		WHERE id = $4 AND linked_account_id IS NULL AND enrollment_status = ANY($5)`
	res, err := repo.getExec(exec).ExecContext(ctx, q, accountID, string(to), at.UTC(), id, pq.Array(statusStrings(from)))
	if err != nil {
		return false, errors.Wrap(err, "linking learner account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "linking learner account")
	}
	return n == 1, nil
}
