package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/user"
	emailsvc "github.com/trezcool/admissions/services/email"
	logsvc "github.com/trezcool/admissions/services/logger"
	"github.com/trezcool/admissions/storage/database"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer func() { _ = db.Close() }()

	// set up services
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	lrnRepo := sqlxrepos.NewLearnerRepository(db)
	prov := enrollment.NewProvisioner(usrRepo, lrnRepo, validator.New(), conf)
	runner, err := enrollment.NewBackfillRunner(db, lrnRepo, prov, enrollment.NewMailNotifier(mailSvc, conf), logger)
	errAndDie(logger, err)

	// stop between learners on SIGINT|SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrRepo:  usrRepo,
		usrSvc:   user.NewService(usrRepo, mailSvc, conf),
		backfill: runner,
		out:      os.Stdout,
	}
	if err = cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		stop()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
