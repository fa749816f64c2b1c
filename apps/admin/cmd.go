package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/storage/database"
)

var (
	runMigrationFunc = database.RunMigration // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	usrSvc   *user.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -roles ROLES - create a staff account, or update the roles of an existing one")
	fmt.Fprintln(cli.out, "  token -username USERNAME|EMAIL - print an API token for an active user")
	fmt.Fprintln(cli.out, "  activate -username USERNAME|EMAIL - reactivate a user")
	fmt.Fprintln(cli.out, "  deactivate -username USERNAME|EMAIL - deactivate a user; their tokens stop working")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := cli.newFlagSet("adduser")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", user.RoleAdmin, "Comma-separated roles, eg. admin:bursar.")

	tokenCmd := cli.newFlagSet("token")
	tokenUname := tokenCmd.String("username", "", "The user's username or email.")

	activeCmd := cli.newFlagSet(args[1])
	activeUname := activeCmd.String("username", "", "The user's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, splitRoles(*addUserRoles))
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUname == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.printToken(*tokenUname)
	case "activate", "deactivate":
		if err := activeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activeUname == "" {
			activeCmd.Usage()
			return errHelp
		}
		return cli.setActive(*activeUname, args[1] == "activate")
	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(s string) []string {
	var roles []string
	for _, role := range strings.Split(s, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
