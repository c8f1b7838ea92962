package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	"github.com/urfave/cli/v3"

	"github.com/entrhq/pilot/pkg/recorder"
	"github.com/entrhq/pilot/pkg/workflow"
)

const pollInterval = 500 * time.Millisecond

func NewRecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record interaction in a headed browser and export it as a workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Page to record on",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name of the exported workflow",
				Value: "recorded",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the definition to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "copy",
				Usage: "Copy the definition to the clipboard",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Print the definition without syntax highlighting",
			},
			&cli.StringSliceFlag{
				Name:  "ignore",
				Usage: "Glob of element CSS paths or ids to leave out (repeatable)",
			},
			&cli.StringFlag{
				Name:  "screenshots",
				Usage: "Directory for one screenshot per recorded action",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(ctx, command, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			a.cfg.Browser.Headless = false
			page, err := a.openPage(ctx, "")
			if err != nil {
				return err
			}

			rec := recorder.New(page, a.logger.With("recorder"))
			if _, err := rec.Start(ctx, command.String("url"), "", recorder.Options{
				Ignore:        command.StringSlice("ignore"),
				ScreenshotDir: command.String("screenshots"),
			}); err != nil {
				return err
			}
			a.reporter.Header("Recording " + rec.SessionID())
			a.reporter.Infof("Interact with the page, then press Ctrl-C to finish")

			pollActions(ctx, rec, a.reporter)

			actions := rec.Stop()
			a.reporter.Successf("Recorded %d action(s)", len(actions))

			wf, locators := rec.ExportToWorkflow(command.String("name"))
			data, err := workflow.NewDefinition(wf, locators).Marshal()
			if err != nil {
				return err
			}
			return emitDefinition(command, a.reporter, data)
		},
	}
}

// pollActions polls for new actions until an interrupt arrives or ctx ends.
func pollActions(ctx context.Context, rec *recorder.Recorder, reporter *Reporter) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, action := range rec.Poll() {
				reporter.Infof("%s", describeAction(action))
			}
		}
	}
}

func describeAction(a recorder.ProcessedAction) string {
	target := a.Element.Tag
	if len(a.Strategies) > 0 {
		target = a.Strategies[0].String()
	}
	line := fmt.Sprintf("#%d %s %s", a.Seq, a.Action, target)
	if a.Value != "" {
		line += fmt.Sprintf(" = %q", a.Value)
	}
	if a.PressKey != "" {
		line += " + " + a.PressKey
	}
	return line
}

func emitDefinition(command *cli.Command, reporter *Reporter, data []byte) error {
	if command.Bool("copy") {
		if err := clipboard.WriteAll(string(data)); err != nil {
			reporter.Warningf("failed to copy to clipboard: %v", err)
		} else {
			reporter.Successf("Definition copied to clipboard")
		}
	}

	if out := command.String("out"); out != "" {
		if err := os.WriteFile(out, data, 0600); err != nil {
			return fmt.Errorf("failed to write definition: %w", err)
		}
		reporter.Successf("Definition written to %s", out)
		return nil
	}
	return printYAML(os.Stdout, data, !command.Bool("plain"))
}

// printYAML writes data, highlighted for a 256-color terminal when color is set.
func printYAML(w io.Writer, data []byte, color bool) error {
	if color {
		if err := quick.Highlight(w, string(data), "yaml", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := w.Write(data)
	return err
}
