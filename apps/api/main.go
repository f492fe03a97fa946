package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof handlers on the debug mux

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/admissions/apps/api/di/dig"
	echoapi "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

type app struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	DBLogger   core.Logger `name:"dbLogger"`
	DB         *sqlx.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Server     *echoapi.Server
}

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(a app) error {
	a.Logger.Info(fmt.Sprintf("Admissions API starting : version %q, env %q", a.Conf.Build, a.Conf.Env))
	defer a.Logger.Info("Admissions API stopped")
	defer func() {
		if err := a.DB.Close(); err != nil {
			a.DBLogger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	core.InitValidators(a.Validate, a.Translator)
	user.InitValidators(a.Validate, a.Translator)
	core.ParseEmailTemplates(a.Conf, a.Logger)
	user.LoadCommonPasswords(a.Logger)

	// /debug/vars (expvar) & /debug/pprof are served apart from the API
	expvar.NewString("build").Set(a.Conf.Build)
	expvar.NewString("env").Set(a.Conf.Env)
	go func() {
		if err := http.ListenAndServe(a.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			a.Logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	go a.Server.Start()

	select {
	case err := <-a.Server.Errors():
		return errors.Wrap(err, "serving API")
	case sig := <-a.Server.ShutdownSignal():
		a.Logger.Info(fmt.Sprintf("%v: shutting down", sig))
	}

	// in-flight accepts finish their transaction & notification within the timeout
	ctx, cancel := context.WithTimeout(context.Background(), a.Conf.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		return errors.Wrap(a.Server.Close(), "forcing server stop")
	}
	return nil
}
