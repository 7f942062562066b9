package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/export"
	"github.com/halvari/crmdedup/internal/storage"
	"github.com/halvari/crmdedup/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded merge runs",
	Long: `Read past merge runs back from the audit database, newest first.

A run that never recorded a finish time was interrupted hard. Its
outcome rows still cover everything decided before the stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRunsList(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show every outcome of one run",
	Long: `Print a run's outcome rows in the order they were decided.

With --csv, the rows are written as the semicolon-delimited merge log
instead of the readable view.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRunsShow(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runsCmd.Flags().IntP("last", "n", 20, "Number of runs to list, 0 for all")
	runsShowCmd.Flags().Bool("csv", false, "Write the merge log as CSV instead of text")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command) error {
	last, _ := cmd.Flags().GetInt("last")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	runs, err := store.ListRuns(ctx, last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		printRunHeader(run)
		fmt.Println()
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	asCSV, _ := cmd.Flags().GetBool("csv")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	outcomes, err := store.OutcomesForRun(ctx, run.ID)
	if err != nil {
		return err
	}

	if asCSV {
		return export.WriteMergeLog(os.Stdout, outcomes)
	}

	printRunHeader(*run)
	if len(outcomes) == 0 {
		fmt.Println("    No outcomes recorded.")
		return nil
	}
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, oc := range outcomes {
		primary := oc.PrimaryID
		if primary == "" {
			primary = "-"
		}
		fmt.Fprintf(tw, "  %s %s\t%s → %s\t%s\t%s\n",
			outcomeBadge(oc.Status), string(oc.Status), oc.MergeeID, primary, oc.GroupKey, oc.Detail)
	}
	return tw.Flush()
}

// printRunHeader renders one run in the list style: badge, ID, and the
// indented field block.
func printRunHeader(run types.Run) {
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%s %s\n", runBadge(run), cyan(run.ID))
	fmt.Printf("    Mode:     %s\n", run.Mode)
	fmt.Printf("    Strategy: %s\n", run.Strategy)
	fmt.Printf("    Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.FinishedAt == nil {
		fmt.Printf("    Result:   %s\n", yellow("did not finish"))
		return
	}
	fmt.Printf("    Result:   %d merged, %d skipped, %d failed\n", run.Merged, run.Skipped, run.Failed)
}

func runBadge(run types.Run) string {
	switch {
	case run.FinishedAt == nil:
		return color.New(color.FgYellow).Sprint("⚠")
	case run.Failed > 0:
		return color.New(color.FgRed).Sprint("✗")
	default:
		return color.New(color.FgGreen).Sprint("✓")
	}
}

func outcomeBadge(status types.OutcomeStatus) string {
	switch {
	case status == types.OutcomeMerged:
		return color.New(color.FgGreen).Sprint("✓")
	case status == types.OutcomeDryRun:
		return color.New(color.FgHiBlack).Sprint("○")
	case status.Failed():
		return color.New(color.FgRed).Sprint("✗")
	default:
		return color.New(color.FgYellow).Sprint("→")
	}
}
