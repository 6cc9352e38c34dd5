package main

import (
	"fmt"
	"os"

	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/urfave/cli"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "snapshotctl"
	app.Usage = "manage epoch snapshot history and its access control"
	app.Version = fmt.Sprintf("%d.%d.%d", common.Version/1_000_000, common.Version/1_000%1_000, common.Version%1_000)
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML config file, defaults and SNAPSHOT_* environment are used if empty",
		},
	}
	app.Commands = []cli.Command{
		deployCommand(),
		submitCommand(),
		pauseCommand(true),
		pauseCommand(false),
		getCommand(),
		latestCommand(),
		historyCommand(),
		epochsCommand(),
		statusCommand(),
		aclCommand(),
		dumpCommand(),
		dumpsCommand(),
		keygenCommand(),
	}

	return app
}
