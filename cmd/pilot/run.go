package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/entrhq/pilot/pkg/executor"
	"github.com/entrhq/pilot/pkg/workflow"
)

func workflowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "defs",
			Aliases:  []string{"d"},
			Usage:    "Path to the workflow definition file",
			Required: true,
			Sources:  cli.EnvVars("PILOT_DEFS"),
		},
		&cli.StringFlag{
			Name:    "workflow",
			Aliases: []string{"w"},
			Usage:   "Workflow to run (may be omitted when the file defines one)",
		},
		&cli.StringFlag{
			Name:     "url",
			Usage:    "Page to open before the first step",
			Required: true,
			Sources:  cli.EnvVars("PILOT_URL"),
		},
	}
}

// session is a loaded workflow bound to a live page.
type session struct {
	app  *app
	wf   *workflow.Workflow
	exec *executor.Executor
}

func openSession(ctx context.Context, command *cli.Command) (*session, error) {
	a, err := newApp(ctx, command, os.Stdout)
	if err != nil {
		return nil, err
	}
	wf, locators, err := loadWorkflow(command.String("defs"), command.String("workflow"))
	if err != nil {
		a.close()
		return nil, err
	}
	page, err := a.openPage(ctx, command.String("url"))
	if err != nil {
		a.close()
		return nil, err
	}
	exec, err := a.newExecutor(ctx, page, locators)
	if err != nil {
		a.close()
		return nil, err
	}
	return &session{app: a, wf: wf, exec: exec}, nil
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a workflow once against a single row",
		Flags: append(workflowFlags(),
			&cli.StringSliceFlag{
				Name:    "row",
				Aliases: []string{"r"},
				Usage:   "Row field as KEY=VALUE (repeatable)",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			row, err := ParseAssignments(command.StringSlice("row"))
			if err != nil {
				return err
			}

			s, err := openSession(ctx, command)
			if err != nil {
				return err
			}
			defer s.app.close()

			ctx, stop := cancelOnSignal(ctx, s.exec, s.app.reporter)
			defer stop()

			s.app.reporter.Header(fmt.Sprintf("Pilot · %s", s.wf.Name))
			result := s.exec.Execute(ctx, s.wf, row, s.app.reporter)
			s.app.reporter.Summary(result)
			if !result.Success {
				return errRunFailed
			}
			return nil
		},
	}
}

func NewBatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run a workflow once per row of a CSV or YAML file",
		Flags: append(workflowFlags(),
			&cli.StringFlag{
				Name:     "rows",
				Usage:    "CSV (with header) or YAML list of rows",
				Required: true,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rows, err := LoadRows(command.String("rows"))
			if err != nil {
				return err
			}

			s, err := openSession(ctx, command)
			if err != nil {
				return err
			}
			defer s.app.close()

			ctx, stop := cancelOnSignal(ctx, s.exec, s.app.reporter)
			defer stop()

			reporter := s.app.reporter
			reporter.Header(fmt.Sprintf("Pilot · %s · %d rows", s.wf.Name, len(rows)))
			batch := s.exec.ExecuteBatch(ctx, s.wf, rows, reporter, func(i int, result *executor.ExecutionResult) {
				reporter.Verbosef("row %d/%d finished: %s", i+1, len(rows), result.Status)
			})
			reporter.BatchSummary(batch)
			if batch.FailureCount > 0 || batch.Cancelled {
				return errRunFailed
			}
			return nil
		},
	}
}
