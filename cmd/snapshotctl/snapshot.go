package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/nspcc-dev/snapshot-contract/contracts/snapshot"
	"github.com/nspcc-dev/snapshot-contract/deploy"
	"github.com/urfave/cli"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h. Submitters should retry later.
const exitTempFail = 75

var epochFlag = cli.Uint64Flag{
	Name:  "epoch, e",
	Usage: "snapshot epoch, must be positive",
}

func deployCommand() cli.Command {
	return cli.Command{
		Name:  "deploy",
		Usage: "register and initialize contracts, grant snapshot submission to configured operators",
		Flags: []cli.Flag{wifFlag},
		Action: withEnv(func(c *cli.Context, e *env) error {
			admin, err := signerFromFlag(c)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			operators, err := e.cfg.Deploy.OperatorAccounts()
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			_, err = deploy.Deploy(ctx, deploy.Prm{
				Logger:    e.log,
				Ledger:    e.ledger,
				Admin:     admin,
				Operators: operators,
				RBAC:      e.cfg.Contracts.RBAC,
				CacheSize: e.cfg.Contracts.CacheSize,
			})
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("deploy: %v", err), 1)
			}

			return nil
		}),
	}
}

func submitCommand() cli.Command {
	return cli.Command{
		Name:      "submit",
		Usage:     "record snapshot of the epoch",
		UsageText: "snapshotctl submit --wif <key> --epoch <n> --hash <hex|base58>",
		Flags: []cli.Flag{
			wifFlag,
			epochFlag,
			cli.StringFlag{
				Name:  "hash",
				Usage: "32-byte snapshot hash, big-endian hex or base58",
			},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			s, err := signerFromFlag(c)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			hash, err := parseHash(c.String("hash"))
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			epoch := c.Uint64("epoch")

			recordedAt, err := e.snapshot.SubmitSnapshot(s, epoch, hash)
			switch {
			case err == nil:
				fmt.Fprintf(c.App.Writer, "epoch %d recorded at %s\n", epoch, formatTime(recordedAt))
				return nil
			case errors.Is(err, common.ErrContractPaused):
				return cli.NewExitError(err.Error(), exitTempFail)
			case errors.Is(err, common.ErrDuplicateEpoch):
				m, getErr := e.snapshot.GetSnapshot(epoch)
				if getErr != nil || m == nil || !m.Hash.Equals(hash) {
					return cli.NewExitError(err.Error(), 1)
				}

				fmt.Fprintf(c.App.Writer, "epoch %d is already recorded with the same hash\n", epoch)
				return nil
			default:
				return cli.NewExitError(err.Error(), 1)
			}
		}),
	}
}

func pauseCommand(pause bool) cli.Command {
	name, usage := "unpause", "resume snapshot submissions"
	if pause {
		name, usage = "pause", "stop snapshot submissions"
	}

	return cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{wifFlag},
		Action: withEnv(func(c *cli.Context, e *env) error {
			s, err := signerFromFlag(c)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			if pause {
				err = e.snapshot.Pause(s)
			} else {
				err = e.snapshot.Unpause(s)
			}
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			fmt.Fprintf(c.App.Writer, "paused: %t\n", pause)

			return nil
		}),
	}
}

func getCommand() cli.Command {
	return cli.Command{
		Name:  "get",
		Usage: "print snapshot of the epoch",
		Flags: []cli.Flag{epochFlag},
		Action: withEnv(func(c *cli.Context, e *env) error {
			epoch := c.Uint64("epoch")

			m, err := e.snapshot.GetSnapshot(epoch)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			if m == nil {
				return cli.NewExitError(fmt.Sprintf("epoch %d is not recorded", epoch), 1)
			}

			return printJSON(c.App.Writer, newSnapshotView(*m))
		}),
	}
}

func latestCommand() cli.Command {
	return cli.Command{
		Name:  "latest",
		Usage: "print snapshot of the greatest recorded epoch",
		Action: withEnv(func(c *cli.Context, e *env) error {
			m, err := e.snapshot.GetLatestSnapshot()
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			if m == nil {
				return cli.NewExitError("no snapshots recorded", 1)
			}

			return printJSON(c.App.Writer, newSnapshotView(*m))
		}),
	}
}

func historyCommand() cli.Command {
	return cli.Command{
		Name:  "history",
		Usage: "print all recorded snapshots in ascending epoch order",
		Action: withEnv(func(c *cli.Context, e *env) error {
			res := []snapshotView{}

			err := e.snapshot.IterateSnapshots(func(m snapshot.Metadata) bool {
				res = append(res, newSnapshotView(m))
				return true
			})
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			return printJSON(c.App.Writer, res)
		}),
	}
}

func epochsCommand() cli.Command {
	return cli.Command{
		Name:  "epochs",
		Usage: "print all recorded epochs in ascending order",
		Action: withEnv(func(c *cli.Context, e *env) error {
			epochs, err := e.snapshot.GetAllEpochs()
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			for _, epoch := range epochs {
				fmt.Fprintln(c.App.Writer, epoch)
			}

			return nil
		}),
	}
}

func statusCommand() cli.Command {
	return cli.Command{
		Name:  "status",
		Usage: "print ledger and contracts state",
		Action: withEnv(func(c *cli.Context, e *env) error {
			st, err := collectStatus(e)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			return printJSON(c.App.Writer, st)
		}),
	}
}

type status struct {
	Height      uint32  `json:"height"`
	Admin       string  `json:"admin,omitempty"`
	Version     int     `json:"version"`
	Paused      bool    `json:"paused"`
	RBAC        bool    `json:"rbac"`
	ACL         *int32  `json:"acl,omitempty"`
	LatestEpoch *uint64 `json:"latestEpoch,omitempty"`
	ACLAdmin    string  `json:"aclAdmin,omitempty"`
}

func collectStatus(e *env) (*status, error) {
	var (
		res status
		err error
	)

	res.Height, err = e.ledger.Height()
	if err != nil {
		return nil, err
	}

	admin, ok, err := e.snapshot.GetAdmin()
	if err != nil {
		return nil, err
	}
	if ok {
		res.Admin = address.Uint160ToString(admin)
	}

	res.Version, err = e.snapshot.Version()
	if err != nil {
		return nil, err
	}

	res.Paused, err = e.snapshot.IsPaused()
	if err != nil {
		return nil, err
	}

	aclID, ok, err := e.snapshot.AccessControl()
	if err != nil {
		return nil, err
	}
	if ok {
		res.RBAC = true
		res.ACL = &aclID
	}

	latest, ok, err := e.snapshot.GetLatestEpoch()
	if err != nil {
		return nil, err
	}
	if ok {
		res.LatestEpoch = &latest
	}

	admin, ok, err = e.acl.GetAdmin()
	if err != nil {
		return nil, err
	}
	if ok {
		res.ACLAdmin = address.Uint160ToString(admin)
	}

	return &res, nil
}

// snapshotView is a human-readable snapshot record.
type snapshotView struct {
	Epoch      uint64 `json:"epoch"`
	Hash       string `json:"hash"`
	HashBase58 string `json:"hashBase58"`
	RecordedAt string `json:"recordedAt"`
}

func newSnapshotView(m snapshot.Metadata) snapshotView {
	return snapshotView{
		Epoch:      m.Epoch,
		Hash:       m.Hash.StringBE(),
		HashBase58: base58.Encode(m.Hash.BytesBE()),
		RecordedAt: formatTime(m.RecordedAt),
	}
}

func formatTime(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
