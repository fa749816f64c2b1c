package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/ecolage/apps/api/echo"
	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/user"
)

// addUser creates a staff user, or updates the roles of the user holding uname or email.
func (cli *commandLine) addUser(name, uname, email string, roles []string) error {
	ctx := context.Background()

	usr, err := cli.findUser(ctx, uname, email)
	if err == nil {
		active := true
		uu := user.UpdateUser{Name: name, Roles: roles, IsActive: &active}
		if err := uu.Validate(usr, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
			return errors.Wrap(err, "updating user")
		}
		fmt.Fprintf(cli.out, "user %s updated: %v\n", usr.Username, usr.Roles)
		return nil
	}
	if !core.IsNotFound(err) {
		return err
	}

	nu := user.NewUser{Name: name, Username: uname, Email: email, Roles: roles}
	if err := nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Fprintf(cli.out, "user %s created: %v\n", usr.ID, usr.Roles)
	return nil
}

func (cli *commandLine) findUser(ctx context.Context, unames ...string) (user.User, error) {
	for _, uname := range unames {
		if uname == "" {
			continue
		}
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
		if err == nil || !core.IsNotFound(err) {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}

// printToken prints a signed API token; staff exchange it for fresh ones through the token-refresh endpoint.
func (cli *commandLine) printToken(uname string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(context.Background(), uname)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return fmt.Errorf("user %s is deactivated", usr.Username)
	}
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, cli.conf), cli.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) setActive(uname string, active bool) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err := cli.usrSvc.SetActive(ctx, usr, active); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}
