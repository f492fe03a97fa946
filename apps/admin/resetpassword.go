package main

import (
	"context"
	"fmt"

	"github.com/trezcool/admissions/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = user.CheckPasswordPolicy(pwd, usr.Name, usr.Username, usr.Email); err != nil {
		return err
	}
	if _, err = cli.usrSvc.ResetPassword(ctx, uname, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s reset\n", usr.Username)
	return nil
}
