package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
	testutil "github.com/trezcool/admissions/tests"
)

func Test_learnerApi_register(t *testing.T) {
	app := setup(t)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"first_name": reqMsg, "last_name": reqMsg, "program": reqMsg, "email": reqMsg}),
		},
		{
			name: "invalid email & phone", wantCode: http.StatusBadRequest,
			body: marshallObj(t, learner.NewLearner{FirstName: "Ada", LastName: "Lovelace", Program: "Math", Email: "lol", Phone: "lol"}),
			wantData: marshallObj(t, map[string]string{
				"email": "enter a valid email address",
				"phone": "enter a valid phone number",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.serve(http.MethodPost, "/v1/learners", "", tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("registered", func(t *testing.T) {
		testutil.ExpectTxs(app.mock, 1)
		body := marshallObj(t, learner.NewLearner{FirstName: " Ada ", LastName: "Lovelace", Program: "Math", Email: "ADA@x.com", City: "London"})

		rec := app.serve(http.MethodPost, "/v1/learners", "", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got learner.Learner
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "Ada", got.FirstName)
		assert.Equal(t, learner.StatusPending, got.Status)
		assert.Empty(t, got.LinkedAccountID)
		require.NotNil(t, got.Address)
		assert.Equal(t, "ada@x.com", got.Address.Email)
		assert.NoError(t, app.mock.ExpectationsWereMet())
	})
}

func Test_learnerApi_retrieve(t *testing.T) {
	app := setup(t)
	staff := testutil.CreateUser(t, app.users, "Grace", "registrar", "grace@academy.test", "", []string{user.RoleStaffRegistrar}, true)
	learnerUsr := testutil.CreateUser(t, app.users, "Ada", "ada@x.com", "ada@x.com", "", []string{user.RoleLearner}, true)
	l := testutil.CreateLearner(t, app.learners, "Ada", "Lovelace", "ada@x.com", learner.StatusPending)

	tests := []httpTest{
		{name: "auth required", path: "/v1/learners/" + l.ID, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "staff required", path: "/v1/learners/" + l.ID, token: app.token(t, learnerUsr),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "not found", path: "/v1/learners/lol", token: app.token(t, staff),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "learner not found"}),
		},
		{name: "found", path: "/v1/learners/" + l.ID, token: app.token(t, staff), wantCode: http.StatusOK, wantData: marshallObj(t, l)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.serve(http.MethodGet, tt.path, tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_learnerApi_accept(t *testing.T) {
	app := setup(t)
	staff := testutil.CreateUser(t, app.users, "Grace", "registrar", "grace@academy.test", "", []string{user.RoleStaff}, true)
	token := app.token(t, staff)

	pending := testutil.CreateLearner(t, app.learners, "Ada", "Lovelace", "ada@x.com", learner.StatusPending)
	noEmail := testutil.CreateLearner(t, app.learners, "Alan", "Turing", "", learner.StatusPending)
	taken := testutil.CreateLearner(t, app.learners, "Grace", "Hopper", "grace@academy.test", learner.StatusPending)

	path := func(id string) string { return "/v1/learners/" + id + "/accept" }

	t.Run("accepted", func(t *testing.T) {
		testutil.ExpectTxs(app.mock, 1)

		rec := app.serve(http.MethodPost, path(pending.ID), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.AcceptResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, enrollment.OutcomeApplied, resp.Outcome)
		assert.Equal(t, learner.StatusAccepted, resp.Learner.Status)
		assert.Equal(t, resp.AccountID, resp.Learner.LinkedAccountID)
		assert.Equal(t, "sent", resp.Notification)
		require.Equal(t, 1, app.notifier.Count())
		assert.NotContains(t, rec.Body.String(), app.notifier.Deliveries[0].TempPassword)

		acc, err := app.users.GetUser(context.Background(), user.GetFilter{ID: resp.AccountID})
		require.NoError(t, err)
		assert.Equal(t, "ada@x.com", acc.Username)
		assert.True(t, acc.MustChangePassword)
		assert.NoError(t, app.mock.ExpectationsWereMet())
	})

	tests := []struct {
		httpTest
		id string
	}{
		{
			httpTest: httpTest{
				name: "accepted twice", wantCode: http.StatusConflict,
				wantData: marshallObj(t, map[string]string{"error": enrollment.ErrAlreadyProcessed.Error(), "outcome": "already-done"}),
			},
			id: pending.ID,
		},
		{
			httpTest: httpTest{
				name: "missing contact", wantCode: http.StatusUnprocessableEntity,
				wantData: marshallObj(t, map[string]string{"error": enrollment.ErrMissingContact.Error(), "outcome": "blocked-missing-data"}),
			},
			id: noEmail.ID,
		},
		{
			httpTest: httpTest{
				name: "duplicate account", wantCode: http.StatusUnprocessableEntity,
				wantData: marshallObj(t, map[string]string{"error": enrollment.ErrDuplicateAccount.Error(), "outcome": "blocked-duplicate"}),
			},
			id: taken.ID,
		},
		{
			httpTest: httpTest{
				name: "not found", wantCode: http.StatusNotFound,
				wantData: marshallObj(t, httpErr{Error: "learner not found"}),
			},
			id: "lol",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.mock.ExpectBegin()
			app.mock.ExpectRollback()

			rec := app.serve(http.MethodPost, path(tt.id), token)
			checkCodeAndData(t, tt.httpTest, rec)
			assert.NoError(t, app.mock.ExpectationsWereMet())
		})
	}

	assert.Equal(t, 1, app.notifier.Count())
	assert.Equal(t, learner.StatusPending, getLearner(t, app, noEmail.ID).Status)
	assert.Empty(t, getLearner(t, app, taken.ID).LinkedAccountID)
}

func Test_learnerApi_accept_notificationFailure(t *testing.T) {
	app := setup(t)
	app.notifier.Err = assert.AnError
	staff := testutil.CreateUser(t, app.users, "Grace", "registrar", "grace@academy.test", "", []string{user.RoleStaff}, true)
	l := testutil.CreateLearner(t, app.learners, "Ada", "Lovelace", "ada@x.com", learner.StatusPending)
	testutil.ExpectTxs(app.mock, 1)

	rec := app.serve(http.MethodPost, "/v1/learners/"+l.ID+"/accept", app.token(t, staff))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.AcceptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, enrollment.OutcomeApplied, resp.Outcome)
	assert.Equal(t, "failed", resp.Notification)
	assert.Equal(t, learner.StatusAccepted, getLearner(t, app, l.ID).Status)
}

func Test_learnerApi_reject(t *testing.T) {
	app := setup(t)
	staff := testutil.CreateUser(t, app.users, "Grace", "registrar", "grace@academy.test", "", []string{user.RoleStaff}, true)
	admin := testutil.CreateUser(t, app.users, "Root", "root", "root@academy.test", "", []string{user.RoleAdmin}, true)
	learnerUsr := testutil.CreateUser(t, app.users, "Ada", "ada@x.com", "ada@x.com", "", []string{user.RoleLearner}, true)
	l := testutil.CreateLearner(t, app.learners, "Alan", "Turing", "alan@x.com", learner.StatusPending)
	path := "/v1/learners/" + l.ID + "/reject"

	rec := app.serve(http.MethodPost, path, app.token(t, learnerUsr))
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"})}, rec)

	testutil.ExpectTxs(app.mock, 1)
	rec = app.serve(http.MethodPost, path, app.token(t, admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.RejectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, enrollment.OutcomeApplied, resp.Outcome)
	assert.Equal(t, learner.StatusRejected, resp.Learner.Status)

	app.mock.ExpectBegin()
	app.mock.ExpectRollback()
	rec = app.serve(http.MethodPost, path, app.token(t, staff))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marshallObj(t, map[string]string{"error": enrollment.ErrAlreadyProcessed.Error(), "outcome": "already-done"}),
	}, rec)

	assert.Zero(t, app.notifier.Count())
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func getLearner(t *testing.T, app *testApp, id string) learner.Learner {
	t.Helper()
	l, err := app.learners.GetLearner(context.Background(), id)
	require.NoError(t, err)
	return l
}
