package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core/learner"
)

var learnerCols = []string{"id", "first_name", "last_name", "program", "enrollment_status", "linked_account_id",
	"decided_at", "created_at", "updated_at", "has_address", "address_email", "address_phone", "address_line1",
	"address_line2", "address_city", "address_country"}

const (
	learnerID = "6f1c1b0e-3f5e-4d5c-a0a8-2b8f6d1e7c31"
	accountID = "0b7f5fa6-8a42-4b8c-9ad4-8f0f2a1c9e11"
)

func TestLearnerRepository_CreateLearner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLearnerRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO learner \(id, first_name`).
		WithArgs(sqlmock.AnyArg(), "Ada", "Lovelace", "Go Backend", "pending", nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO learner_address`).
		WithArgs(sqlmock.AnyArg(), "a@x.com", "", "1 Main St", "", "Kinshasa", "CD").
		WillReturnResult(sqlmock.NewResult(0, 1))

	l, err := repo.CreateLearner(context.Background(), learner.Learner{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Program:   "Go Backend",
		Address:   &learner.Address{Email: "a@x.com", Line1: "1 Main St", City: "Kinshasa", Country: "CD"},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, isUUID(l.ID))
	assert.Equal(t, learner.StatusPending, l.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearnerRepository_GetLearnerForUpdate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		id       string
		row      []driver.Value
		wantErr  error
		wantAddr bool
	}{
		{
			name:     "with address",
			id:       learnerID,
			row:      []driver.Value{learnerID, "Ada", "Lovelace", "Go", "pending", nil, nil, now, now, true, "a@x.com", "", "", "", "", ""},
			wantAddr: true,
		},
		{
			name: "without address",
			id:   learnerID,
			row:  []driver.Value{learnerID, "Ada", "Lovelace", "Go", "pending", nil, nil, now, now, false, nil, nil, nil, nil, nil, nil},
		},
		{name: "not found", id: learnerID, wantErr: learner.ErrNotFound},
		{name: "invalid id", id: "1", wantErr: learner.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewLearnerRepository(db)

			if isUUID(tt.id) {
				rows := sqlmock.NewRows(learnerCols)
				if tt.row != nil {
					rows.AddRow(tt.row...)
				}
				mock.ExpectQuery(`FROM learner l LEFT JOIN learner_address a ON a.learner_id = l.id WHERE l.id = \$1 FOR UPDATE OF l`).
					WithArgs(tt.id).
					WillReturnRows(rows)
			}

			l, err := repo.GetLearnerForUpdate(context.Background(), tt.id, db)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, learner.StatusPending, l.Status)
				assert.False(t, l.IsLinked())
				assert.Equal(t, tt.wantAddr, l.Address != nil)
				if tt.wantAddr {
					assert.Equal(t, "a@x.com", l.ContactEmail())
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLearnerRepository_QueryUnprovisioned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLearnerRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE l.linked_account_id IS NULL AND l.enrollment_status <> \$1 ORDER BY l.created_at, l.id`).
		WithArgs("rejected").
		WillReturnRows(sqlmock.NewRows(learnerCols).
			AddRow(learnerID, "Ada", "Lovelace", "Go", "pending", nil, nil, now, now, true, "a@x.com", "", "", "", "", "").
			AddRow(accountID, "Alan", "Turing", "Go", "accepted", nil, now, now, now, false, nil, nil, nil, nil, nil, nil))

	learners, err := repo.QueryUnprovisioned(context.Background())
	require.NoError(t, err)
	require.Len(t, learners, 2)
	assert.Equal(t, "a@x.com", learners[0].ContactEmail())
	assert.Equal(t, "", learners[1].ContactEmail())
	assert.Equal(t, learner.StatusAccepted, learners[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearnerRepository_UpdateStatus(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "pending learner", affected: 1, want: true},
		{name: "already processed", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(`UPDATE learner SET enrollment_status = \$1, decided_at = \$2, updated_at = \$2\s+WHERE id = \$3 AND enrollment_status = \$4`).
				WithArgs("rejected", now, learnerID, "pending").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := NewLearnerRepository(db).UpdateStatus(context.Background(), learnerID, learner.StatusPending, learner.StatusRejected, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLearnerRepository_LinkAccount(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)UPDATE learner SET linked_account_id = \$1, enrollment_status = \$2,.+WHERE id = \$4 AND linked_account_id IS NULL AND enrollment_status = ANY\(\$5\)`).
		WithArgs(accountID, "accepted", now, learnerID, "{\"pending\",\"accepted\"}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewLearnerRepository(db).LinkAccount(context.Background(), learnerID, accountID,
		[]learner.Status{learner.StatusPending, learner.StatusAccepted}, learner.StatusAccepted, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
