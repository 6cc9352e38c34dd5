package main

import (
	"fmt"

	"github.com/nspcc-dev/snapshot-contract/contracts/acl/role"
	"github.com/urfave/cli"
)

var (
	accountFlag = cli.StringFlag{
		Name:  "account, a",
		Usage: "account address",
	}
	roleFlag = cli.StringFlag{
		Name:  "role, r",
		Usage: "role name: admin, operator or viewer",
	}
	methodFlag = cli.StringFlag{
		Name:  "method, m",
		Usage: "protected method name, e.g. submitSnapshot",
	}
)

func aclCommand() cli.Command {
	return cli.Command{
		Name:  "acl",
		Usage: "manage roles and permissions",
		Subcommands: []cli.Command{
			{
				Name:   "grant-role",
				Usage:  "give the role to the account",
				Flags:  []cli.Flag{wifFlag, accountFlag, roleFlag},
				Action: withEnv(roleAction(true)),
			},
			{
				Name:   "revoke-role",
				Usage:  "take the role away from the account",
				Flags:  []cli.Flag{wifFlag, accountFlag, roleFlag},
				Action: withEnv(roleAction(false)),
			},
			{
				Name:   "grant-permission",
				Usage:  "allow the role to call the method",
				Flags:  []cli.Flag{wifFlag, roleFlag, methodFlag},
				Action: withEnv(permissionAction(true)),
			},
			{
				Name:   "revoke-permission",
				Usage:  "forbid the role to call the method",
				Flags:  []cli.Flag{wifFlag, roleFlag, methodFlag},
				Action: withEnv(permissionAction(false)),
			},
			{
				Name:  "has-role",
				Usage: "check whether the account holds the role",
				Flags: []cli.Flag{accountFlag, roleFlag},
				Action: withEnv(func(c *cli.Context, e *env) error {
					acc, err := parseAccount(c.String("account"))
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}

					r, err := role.Parse(c.String("role"))
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}

					ok, err := e.acl.HasRole(acc, r)
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}

					fmt.Fprintln(c.App.Writer, ok)

					return nil
				}),
			},
			{
				Name:  "check",
				Usage: "check whether the account may call the method",
				Flags: []cli.Flag{accountFlag, methodFlag},
				Action: withEnv(func(c *cli.Context, e *env) error {
					acc, err := parseAccount(c.String("account"))
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}

					ok, err := e.acl.CheckPermission(acc, c.String("method"))
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}

					fmt.Fprintln(c.App.Writer, ok)

					return nil
				}),
			},
		},
	}
}

func roleAction(grant bool) func(*cli.Context, *env) error {
	return func(c *cli.Context, e *env) error {
		s, err := signerFromFlag(c)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		acc, err := parseAccount(c.String("account"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		r, err := role.Parse(c.String("role"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		if grant {
			err = e.acl.GrantRole(s, acc, r)
		} else {
			err = e.acl.RevokeRole(s, acc, r)
		}
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		return nil
	}
}

func permissionAction(grant bool) func(*cli.Context, *env) error {
	return func(c *cli.Context, e *env) error {
		s, err := signerFromFlag(c)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		r, err := role.Parse(c.String("role"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		if grant {
			err = e.acl.GrantPermission(s, r, c.String("method"))
		} else {
			err = e.acl.RevokePermission(s, r, c.String("method"))
		}
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		return nil
	}
}
