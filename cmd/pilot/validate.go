package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/entrhq/pilot/pkg/workflow"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check a workflow definition file without opening a browser",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "defs",
				Aliases:  []string{"d"},
				Usage:    "Path to the workflow definition file",
				Required: true,
				Sources:  cli.EnvVars("PILOT_DEFS"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			reporter := NewReporter(os.Stdout, ParseVerbosity(command.String("verbosity")))
			return validateDefinition(command.String("defs"), reporter)
		},
	}
}

// validateDefinition loads path, compiles every workflow and reports reference
// problems. It fails when anything would stop a run.
func validateDefinition(path string, reporter *Reporter) error {
	def, err := workflow.Load(path)
	if err != nil {
		reporter.Errorf("%v", err)
		return errRunFailed
	}

	failed := false
	for _, name := range def.WorkflowNames() {
		wf, err := def.Workflow(name)
		if err != nil {
			reporter.Errorf("workflow %s: %v", name, err)
			failed = true
			continue
		}
		reporter.Successf("workflow %s: %d step(s)", name, len(wf.Steps))
		for _, step := range wf.Sorted() {
			line := fmt.Sprintf("[%d] %s %s", step.Order, step.ID, step.Action)
			if step.Condition != "" {
				line += " when " + step.Condition
			}
			reporter.Verbosef("%s", line)
		}
	}

	for _, problem := range def.Problems() {
		reporter.Warningf("%s", problem)
		failed = true
	}
	if failed {
		return errRunFailed
	}
	reporter.Infof("%s is valid", path)
	return nil
}
