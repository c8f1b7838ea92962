// Command pilot runs, records and inspects browser automation workflows.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "pilot",
		Usage:                 "Drive web forms from workflow definitions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewBatchCommand(),
			NewRecordCommand(),
			NewValidateCommand(),
			NewStatsCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the run configuration (default ~/.pilot/config.yaml)",
				Sources: cli.EnvVars("PILOT_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Usage:   "Console output level (quiet, normal, verbose, debug)",
				Sources: cli.EnvVars("PILOT_VERBOSITY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log file level (debug, info, warn, error)",
				Sources: cli.EnvVars("PILOT_LOG_LEVEL"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
