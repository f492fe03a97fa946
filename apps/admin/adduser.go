package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

// addUser updates or creates an active staff user. Admins get all the roles.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name == "" {
		name = uname
	}
	if err := user.CheckPasswordPolicy(pwd, name, uname, email); err != nil {
		return err
	}

	now := time.Now().UTC()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}

	usr.Name = core.CleanString(name)
	usr.Roles = []string{user.RoleStaff}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s saved\n", usr.Username)
	return nil
}
