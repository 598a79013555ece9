package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

const description = `
taskschedd runs configured tasks at their due times. Tasks recur on a
fixed interval ("15m", "02:30") or a cron schedule ("*/5 * * * *",
"@hourly"). The config file is watched and reloaded in place.
`

var cfgPath string

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to config (json or yaml)",
		EnvVar:      "TASKSCHEDD_CONFIG",
		Value:       "./taskschedd.yaml",
		Destination: &cfgPath,
	},
}

func main() {
	app := cli.App{
		Name:        "taskschedd",
		HelpName:    "taskschedd",
		Usage:       "in-process task dispatcher",
		Version:     version,
		Description: description,
		Flags:       globalFlags,
		Action:      run,
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the dispatcher until interrupted (default)",
				Action: run,
			},
			{
				Name:    "check",
				Aliases: []string{"validate"},
				Usage:   "validate the config and print upcoming runs",
				Action:  check,
				Flags:   checkFlags,
			},
			{
				Name:    "history",
				Aliases: []string{"h"},
				Usage:   "print recent runs from the run history",
				Action:  history,
				Flags:   historyFlags,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "taskschedd:", err)
		os.Exit(1)
	}
}
