package main

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli"

	"tickrtos/internal/logging"
)

var (
	app = cli.NewApp()

	firmwareFlag = cli.StringFlag{
		Name:  "firmware, f",
		Usage: "firmware image (YAML)",
		Value: "firmware.yml",
	}
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "kernel configuration (.yml or .toml); defaults are used when empty",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error; overrides the configuration",
	}
)

func init() {
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "run firmware images on a simulated tick-driven RTOS kernel"
	app.HideVersion = true
	app.Commands = []cli.Command{
		RunCommand,
		CheckCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logging.Logger.Fatal(err)
	}
}
