package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/cluster"
	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/match"
	"github.com/halvari/crmdedup/internal/merge"
	"github.com/halvari/crmdedup/internal/plan"
	"github.com/halvari/crmdedup/internal/resolve"
	"github.com/halvari/crmdedup/internal/similarity"
	"github.com/halvari/crmdedup/internal/storage"
	"github.com/halvari/crmdedup/internal/types"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Plan and execute duplicate merges",
	Long: `Build duplicate groups, resolve every member through its forwarding
chain, choose a surviving record per group, and execute the resulting
merge plans.

The default is a dry run: plans are built and logged exactly as a real
run would be, but nothing is sent to the store. Pass --apply to mutate.

The survivor is the record with the earliest creation date; records
without one lose to records that have one, and remaining ties go to the
smallest ID. Every decision lands in the audit database, which
"crmdedup runs" reads back.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMerge(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	mergeCmd.Flags().StringP("strategy", "s", "", "Comma-separated strategies (default from config)")
	mergeCmd.Flags().Bool("apply", false, "Send merges to the store (default is a dry run)")
	mergeCmd.Flags().Bool("fuzzy", false, "Merge fuzzy clusters instead of exact-key groups")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command) error {
	apply, _ := cmd.Flags().GetBool("apply")
	useFuzzy, _ := cmd.Flags().GetBool("fuzzy")

	mode := types.RunDryRun
	if apply {
		mode = types.RunApply
	}
	return runPipeline(cmd, mode, useFuzzy, nil)
}

// candidateGroup is one prospective merge group, however it was found.
type candidateGroup struct {
	key       string
	memberIDs []string
}

// runPipeline is the whole merge flow: fetch, group, resolve, plan, execute.
// Shared by merge and review; the reviewer is non-nil only in review mode.
func runPipeline(cmd *cobra.Command, mode types.RunMode, useFuzzy bool, reviewer merge.Reviewer) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	strategies, err := strategiesFlag(cmd, cfg.Strategies)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := hubspot.New(cfg.HubSpot, logger)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	records, err := fetchRecords(ctx, client, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s Fetched %d companies\n", green("✓"), len(records))

	byID := make(map[string]types.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	var candidates []candidateGroup
	var label string
	if useFuzzy {
		engine, err := similarity.New(cfg.Similarity, logger)
		if err != nil {
			return err
		}
		report, err := engine.Pairs(ctx, records)
		if err != nil {
			return err
		}
		clusters := cluster.Clusters(report.Pairs)
		for _, c := range clusters {
			// Clusters carry no match key; the smallest member names the group.
			candidates = append(candidates, candidateGroup{
				key:       "fuzzy:" + c.Members[0],
				memberIDs: c.Members,
			})
		}
		label = "fuzzy"
		fmt.Fprintf(os.Stderr, "%s Found %d fuzzy clusters\n", green("✓"), len(candidates))
	} else {
		matcher := match.New(client, logger)
		groups, err := matcher.Groups(ctx, records, strategies)
		if err != nil {
			return err
		}
		for _, g := range groups {
			candidates = append(candidates, candidateGroup{
				key:       g.Key.String(),
				memberIDs: g.MemberIDs(),
			})
		}
		names := make([]string, len(strategies))
		for i, s := range strategies {
			names[i] = string(s)
		}
		label = strings.Join(names, ",")
		fmt.Fprintf(os.Stderr, "%s Found %d duplicate groups\n", green("✓"), len(candidates))
	}

	if len(candidates) == 0 {
		fmt.Println("Nothing to merge.")
		return nil
	}

	resolver := resolve.New(client, cfg.HopBudget, logger)
	var allIDs []string
	for _, g := range candidates {
		allIDs = append(allIDs, g.memberIDs...)
	}
	resolutions, err := resolver.ResolveMany(ctx, allIDs)
	if err != nil {
		return fmt.Errorf("resolving chains: %w", err)
	}

	results := make([]plan.Result, 0, len(candidates))
	planned, mergees := 0, 0
	for _, g := range candidates {
		members := make([]plan.Member, 0, len(g.memberIDs))
		for _, id := range g.memberIDs {
			members = append(members, plan.Member{Record: byID[id], Resolution: resolutions[id]})
		}
		result, err := plan.Build(g.key, members)
		if err != nil {
			return err
		}
		if result.Plan != nil {
			planned++
			mergees += len(result.Plan.MergeeIDs)
		}
		results = append(results, result)
	}
	fmt.Fprintf(os.Stderr, "%s Planned %d groups, %d records to fold\n", green("✓"), planned, mergees)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	exec, err := merge.New(client, resolver, cfg.Merge, mode, reviewer, storage.NewRunSink(store), logger)
	if err != nil {
		return err
	}

	summary, execErr := exec.Execute(ctx, label, results)
	if summary != nil {
		printSummary(summary, mode)
	}
	return execErr
}

// printSummary renders the run's final counters. The summary covers what
// was logged even when the run stopped early.
func printSummary(sum *merge.Summary, mode types.RunMode) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	run := sum.Run
	verb := "merged"
	if mode == types.RunDryRun {
		verb = "planned"
	}

	fmt.Printf("\nRun %s (%s)\n", cyan(run.ID), run.Mode)
	failed := fmt.Sprintf("%d failed", run.Failed)
	if run.Failed > 0 {
		failed = red(failed)
	}
	fmt.Printf("  %s %d %s, %d skipped, %s\n", green("✓"), run.Merged, verb, run.Skipped, failed)
	if mode == types.RunDryRun {
		fmt.Printf("  %s\n", gray("dry run: no records were modified"))
	}
	fmt.Printf("  Details: crmdedup runs show %s\n", run.ID)
}
