package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
	"github.com/trezcool/admissions/core/user"
	emailsvc "github.com/trezcool/admissions/services/email"
	logsvc "github.com/trezcool/admissions/services/logger"
	"github.com/trezcool/admissions/storage/database"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ServerParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	LearnerSvc    *learner.Service
	EnrollmentSvc *enrollment.Service
	Backfill      *enrollment.BackfillRunner
}

type EnrollmentParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	DB          core.DB
	Learners    learner.Repository
	Provisioner *enrollment.Provisioner
	Notifier    *enrollment.MailNotifier
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New(os.Stdout, "API : ", log.LstdFlags, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newEnrollmentService(p EnrollmentParams) (*enrollment.Service, error) {
	svc, err := enrollment.NewService(p.DB, p.Learners, p.Provisioner, p.Notifier, p.Logger)
	if err != nil {
		return nil, err
	}
	if p.Conf.Enrollment.NotifyRejections {
		svc.NotifyRejections(p.Notifier)
	}
	return svc, nil
}

func newBackfillRunner(p EnrollmentParams) (*enrollment.BackfillRunner, error) {
	return enrollment.NewBackfillRunner(p.DB, p.Learners, p.Provisioner, p.Notifier, p.Logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		LearnerSvc:    p.LearnerSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		Backfill:      p.Backfill,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewLearnerRepository, dig.As(new(learner.Repository))))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(learner.NewService))
	must(c.Provide(enrollment.NewProvisioner))
	must(c.Provide(enrollment.NewMailNotifier))
	must(c.Provide(newEnrollmentService))
	must(c.Provide(newBackfillRunner))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
