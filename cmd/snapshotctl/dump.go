package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/snapshot-contract/dump"
	"github.com/urfave/cli"
)

func dumpCommand() cli.Command {
	return cli.Command{
		Name:  "dump",
		Usage: "dump contracts and their storage for audit",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "label, l",
				Usage: "label of the ledger (e.g. 'prod'), must not contain '-'",
			},
			cli.StringFlag{
				Name:  "dir, d",
				Usage: "output directory",
				Value: "testdata",
			},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			label := c.String("label")
			if label == "" {
				return cli.NewExitError("missing ledger label", 1)
			}

			dir := c.String("dir")

			err := os.MkdirAll(dir, 0700)
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("create output dir: %v", err), 1)
			}

			id, err := dump.Ledger(e.ledger, dir, label)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			fmt.Fprintf(c.App.Writer, "ledger state %s is successfully dumped to '%s/'\n", id, dir)

			return nil
		}),
	}
}

func dumpsCommand() cli.Command {
	return cli.Command{
		Name:  "dumps",
		Usage: "list and verify dumps made by the dump command",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "dir, d",
				Usage: "directory with dumps",
				Value: "testdata",
			},
			cli.StringFlag{
				Name:  "id",
				Usage: "check the single dump '<label>-<height>' only",
			},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dir")

			report := func(id dump.ID, r *dump.Reader) error {
				if err := r.Verify(); err != nil {
					return fmt.Errorf("dump %s is inconsistent: %w", id, err)
				}

				contracts, items := r.Stats()
				fmt.Fprintf(c.App.Writer, "%s: %d contracts, %d storage items\n", id, contracts, items)

				return nil
			}

			var err error

			if s := c.String("id"); s != "" {
				var (
					id dump.ID
					r  *dump.Reader
				)

				id, err = dump.ParseID(s)
				if err == nil {
					r, err = dump.OpenReader(dir, id)
				}
				if err == nil {
					err = report(id, r)
				}
			} else {
				err = dump.IterateDumps(dir, report)
			}
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			return nil
		},
	}
}

func keygenCommand() cli.Command {
	return cli.Command{
		Name:  "keygen",
		Usage: "generate new private key",
		Action: func(c *cli.Context) error {
			k, err := keys.NewPrivateKey()
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			fmt.Fprintf(c.App.Writer, "WIF:        %s\n", k.WIF())
			fmt.Fprintf(c.App.Writer, "Address:    %s\n", k.Address())
			fmt.Fprintf(c.App.Writer, "Public key: %s\n", hex.EncodeToString(k.PublicKey().Bytes()))

			return nil
		},
	}
}
