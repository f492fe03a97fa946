package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
	emailsvc "github.com/trezcool/admissions/services/email"
	inmemdb "github.com/trezcool/admissions/storage/database/inmem"
	testutil "github.com/trezcool/admissions/tests"
)

const strongPwd = "Xy7#kLm2pQ9!"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testApp struct {
	conf     *core.Config
	server   *echoapi.Server
	mock     sqlmock.Sqlmock
	users    user.Repository
	learners learner.Repository
	notifier *testutil.RecordingNotifier
}

func setup(t *testing.T) *testApp {
	t.Helper()

	// set up DB & repos
	db, mock := testutil.NewMockDB(t)
	mem := inmemdb.NewDB()
	app := &testApp{
		conf:     testutil.NewConfig(),
		mock:     mock,
		users:    inmemdb.NewUserRepository(mem),
		learners: inmemdb.NewLearnerRepository(mem),
		notifier: &testutil.RecordingNotifier{},
	}

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up services
	prov := enrollment.NewProvisioner(app.users, app.learners, validate, app.conf)
	enrollmentSvc, err := enrollment.NewService(db, app.learners, prov, app.notifier, &testutil.Logger{})
	require.NoError(t, err)
	runner, err := enrollment.NewBackfillRunner(db, app.learners, prov, app.notifier, &testutil.Logger{})
	require.NoError(t, err)

	// set up server
	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          app.conf,
		Logger:        &testutil.Logger{},
		Validate:      validate,
		Translator:    translator,
		UserSvc:       user.NewService(app.users, emailsvc.NewConsoleServiceMock(app.conf, &testutil.Logger{}), app.conf),
		LearnerSvc:    learner.NewService(db, app.learners),
		EnrollmentSvc: enrollmentSvc,
		Backfill:      runner,
	})
	t.Cleanup(func() { _ = app.server.Close() })
	return app
}

func (app *testApp) serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
