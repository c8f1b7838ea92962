package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v3"

	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/workflow"
)

func NewStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show locator strategy statistics and the suggested strategy order",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "stats",
				Usage: "Statistics file (defaults to stats.file of the configuration)",
			},
			&cli.StringFlag{
				Name:    "defs",
				Aliases: []string{"d"},
				Usage:   "Definition file whose locators are ranked, including unused strategies",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.String("stats")
			if path == "" {
				cfg, err := config.Load(command.String("config"))
				if err != nil {
					return err
				}
				path = cfg.Stats.File
			}
			if path == "" {
				return fmt.Errorf("no statistics file: pass --stats or set stats.file")
			}

			store, err := locator.OpenFileStats(path)
			if err != nil {
				return err
			}

			var locators locator.Set
			if defs := command.String("defs"); defs != "" {
				def, err := workflow.Load(defs)
				if err != nil {
					return err
				}
				locators = def.LocatorSet()
			} else {
				locators = locatorsFromStats(store)
			}
			printStats(os.Stdout, store, locators)
			return nil
		},
	}
}

// locatorsFromStats rebuilds locators from recorded strategies alone, in stored order.
func locatorsFromStats(store locator.StatsStore) locator.Set {
	set := make(locator.Set)
	for _, name := range store.Locators() {
		loc := &locator.Locator{Name: name}
		for i, s := range store.Stats(name) {
			loc.Strategies = append(loc.Strategies, locator.Strategy{Kind: s.Kind, Value: s.Value, Priority: i + 1})
		}
		set[name] = loc
	}
	return set
}

// printStats renders one table per locator: every strategy with its counters, ranked
// by the suggested order.
func printStats(w io.Writer, store locator.StatsStore, locators locator.Set) {
	renderer := lipgloss.NewRenderer(w)
	title := renderer.NewStyle().Bold(true)
	border := renderer.NewStyle().Foreground(lipgloss.Color("8"))

	names := locators.Names()
	if len(names) == 0 {
		fmt.Fprintln(w, "no locator statistics recorded")
		return
	}
	for _, name := range names {
		loc := locators[name].Clone()
		locator.ApplyStats(loc, store.Stats(name))
		suggested := locator.Suggest(loc)

		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(border).
			Headers("#", "NOW", "STRATEGY", "OK", "FAIL", "RATE", "LAST USED")
		for i, s := range suggested.Strategies {
			t.Row(
				fmt.Sprint(i+1),
				fmt.Sprint(currentRank(loc, s)),
				truncate(s.String(), 60),
				fmt.Sprint(s.SuccessCount),
				fmt.Sprint(s.FailureCount),
				fmt.Sprintf("%.2f", locator.StrategyStats{Success: s.SuccessCount, Failure: s.FailureCount}.Rate()),
				lastUsed(s),
			)
		}
		fmt.Fprintln(w, title.Render(name))
		fmt.Fprintln(w, t.Render())
	}
}

// currentRank returns the 1-based position of s in loc's configured order.
func currentRank(loc *locator.Locator, s locator.Strategy) int {
	for i, o := range loc.Ordered() {
		if o.Key() == s.Key() {
			return i + 1
		}
	}
	return 0
}

func lastUsed(s locator.Strategy) string {
	if s.LastUsedAt.IsZero() {
		return "never"
	}
	return s.LastUsedAt.Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n-1])) + "…"
}
