package logsvc

import (
	"io"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

// RollbarLogger prints to a std logger and reports to Rollbar when enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

// New returns a logger writing to out with the given prefix (eg: "API : ").
// Rollbar reporting is off in debug and test mode.
func New(out io.Writer, prefix string, flags int, conf *core.Config) *RollbarLogger {
	logger := NewRollbarLogger(log.New(out, prefix, flags), conf)
	logger.Enable(!(conf.Debug || conf.TestMode))
	return logger
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usr *user.User
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if usr == nil { // only set one User
				usr = &a
			}
		case *user.User:
			if usr == nil && a != nil {
				usr = a
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if usr != nil {
		rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	return newArgs
}

// print writes msg then every arg except the acting user.
func (l RollbarLogger) print(args []interface{}) {
	l.std.Println(args[0])
	for _, arg := range args[1:] {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	args = l.prepare(msg, args)
	rollbar.Debug(args...)
	l.print(args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	args = l.prepare(msg, args)
	rollbar.Info(args...)
	l.print(args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	args = l.prepare(msg, args)
	rollbar.Warning(args...)
	l.print(args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	args = l.prepare(msg, args)
	rollbar.Error(args...)
	l.print(args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	args = l.prepare(msg, args)
	rollbar.Critical(args...)
	l.print(args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
