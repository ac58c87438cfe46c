// Package main is the calibrate command. It runs calibration jobs and inspects their results.
package main

import (
	"io"
	"log"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	configFlag  = "config"
	debugFlag   = "debug"
	dbFlag      = "db"
	limitFlag   = "limit"
	distortFlag = "distort"
)

func newApp(out io.Writer, clk clock.Clock) *cli.App {
	return &cli.App{
		Name:            "calibrate",
		Usage:           "estimate pinhole camera parameters from planar board observations",
		HideHelpCommand: true,
		Writer:          out,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a calibration job and save the camera parameters",
				UsageText: "calibrate run --config job.json",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     configFlag,
						Aliases:  []string{"c"},
						Usage:    "load the job from `FILE`",
						EnvVars:  []string{"CALIBRATE_CONFIG"},
						Required: true,
					},
					&cli.BoolFlag{
						Name:    debugFlag,
						Aliases: []string{"vvv"},
						Usage:   "enable debug logging",
					},
				},
				Action: func(c *cli.Context) error {
					return RunAction(c, clk)
				},
			},
			{
				Name:      "show",
				Usage:     "print a saved calibration",
				ArgsUsage: "FILE",
				Action:    ShowAction,
			},
			{
				Name:      "compare",
				Usage:     "compare two saved calibrations, ignoring when they were made",
				ArgsUsage: "FILE FILE",
				Action:    CompareAction,
			},
			{
				Name:      "undistort",
				Usage:     "map pixels through a saved calibration's distortion model",
				ArgsUsage: "FILE X,Y [X,Y...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  distortFlag,
						Usage: "map ideal pixels to distorted ones instead",
					},
				},
				Action: UndistortAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of job files",
				Action: SchemaAction,
			},
			{
				Name:  "history",
				Usage: "list past calibration runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     dbFlag,
						Usage:    "read the run log from `FILE`",
						EnvVars:  []string{"CALIBRATE_RUNLOG"},
						Required: true,
					},
					&cli.IntFlag{
						Name:  limitFlag,
						Usage: "show at most this many runs, 0 for all",
						Value: 10,
					},
				},
				Action: HistoryAction,
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout, clock.New()).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
