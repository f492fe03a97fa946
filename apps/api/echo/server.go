package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
)

type (
	UserService interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (user.User, error)
		SetLastLogin(ctx context.Context, usr user.User) (user.User, error)
		SetPassword(ctx context.Context, usr user.User, pwd string) (user.User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ConfirmPasswordReset(ctx context.Context, data user.ResetUserPassword) (user.User, error)
	}

	LearnerService interface {
		Register(ctx context.Context, nl learner.NewLearner) (learner.Learner, error)
		GetByID(ctx context.Context, id string) (learner.Learner, error)
	}

	EnrollmentService interface {
		Accept(ctx context.Context, id string, staff user.User) (enrollment.AcceptResult, error)
		Reject(ctx context.Context, id string, staff user.User) (learner.Learner, error)
	}

	BackfillRunner interface {
		Run(ctx context.Context) (enrollment.Report, error)
	}

	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       UserService
		LearnerSvc    LearnerService
		EnrollmentSvc EnrollmentService
		Backfill      BackfillRunner
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerUserAPI(v1, jwt, s.deps)
	registerLearnerAPI(v1, jwt, s.deps)
	registerEnrollmentAPI(v1, jwt, s.deps)
}

// Start blocks until the server stops; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
