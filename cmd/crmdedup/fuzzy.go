package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/cluster"
	"github.com/halvari/crmdedup/internal/export"
	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/similarity"
	"github.com/halvari/crmdedup/internal/types"
)

var fuzzyCmd = &cobra.Command{
	Use:   "fuzzy",
	Short: "Report approximate-duplicate candidate pairs",
	Long: `Score company names for approximate similarity and write every candidate
pair at or above the score threshold as CSV.

Records are blocked on shared name tokens and domain roots, so only
records inside a shared bucket are ever compared. Oversized buckets are
skipped and reported on stderr rather than compared at quadratic cost.

With --clusters, pairs are folded into connected components and printed
as a readable cluster view instead of CSV.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFuzzy(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	fuzzyCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	fuzzyCmd.Flags().Int("min-score", 0, "Similarity threshold 0-100 (default from config)")
	fuzzyCmd.Flags().Int("max-bucket", 0, "Largest bucket compared (default from config)")
	fuzzyCmd.Flags().Int("max-pairs", 0, "Cap on reported pairs, 0 for uncapped (default from config)")
	fuzzyCmd.Flags().Bool("clusters", false, "Print connected clusters instead of pairs")
	rootCmd.AddCommand(fuzzyCmd)
}

func runFuzzy(cmd *cobra.Command) error {
	outPath, _ := cmd.Flags().GetString("output")
	clustersView, _ := cmd.Flags().GetBool("clusters")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	simCfg := similarityFlags(cmd, cfg.Similarity)

	engine, err := similarity.New(simCfg, logger)
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
	yellow := color.New(color.FgYellow).SprintFunc()
	records, err := fetchRecords(ctx, client, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s Fetched %d companies\n", green("✓"), len(records))

	report, err := engine.Pairs(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s Compared %d pairs, %d candidates at score >= %d\n",
		green("✓"), report.Compared, len(report.Pairs), simCfg.MinScore)
	for _, sb := range report.SkippedBuckets {
		fmt.Fprintf(os.Stderr, "%s Skipped bucket %s (%d records, limit %d)\n",
			yellow("⚠"), sb.Key, sb.Size, simCfg.MaxBucketSize)
	}
	if report.Truncated {
		fmt.Fprintf(os.Stderr, "%s Output truncated to %d pairs\n", yellow("⚠"), simCfg.MaxPairs)
	}

	if !clustersView {
		return writeReport(outPath, func(w io.Writer) error {
			return export.WriteFuzzyPairs(w, report.Pairs)
		})
	}

	clusters := cluster.Clusters(report.Pairs)
	fmt.Fprintf(os.Stderr, "%s %d clusters\n", green("✓"), len(clusters))

	byID := make(map[string]types.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return writeReport(outPath, func(w io.Writer) error {
		return writeClusters(w, clusters, byID)
	})
}

// similarityFlags overlays the fuzzy command's flags onto the configured
// engine settings.
func similarityFlags(cmd *cobra.Command, cfg similarity.Config) similarity.Config {
	if cmd.Flags().Changed("min-score") {
		cfg.MinScore, _ = cmd.Flags().GetInt("min-score")
	}
	if cmd.Flags().Changed("max-bucket") {
		cfg.MaxBucketSize, _ = cmd.Flags().GetInt("max-bucket")
	}
	if cmd.Flags().Changed("max-pairs") {
		cfg.MaxPairs, _ = cmd.Flags().GetInt("max-pairs")
	}
	return cfg
}

// writeClusters renders connected components with their member records and
// the scored edges that connected them.
func writeClusters(w io.Writer, clusters []types.Cluster, byID map[string]types.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, c := range clusters {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "cluster %d: %d records\n", i+1, len(c.Members))
		for _, id := range c.Members {
			rec := byID[id]
			name, domain := rec.Name, rec.Domain
			if name == "" {
				name = "-"
			}
			if domain == "" {
				domain = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", id, name, domain)
		}
		for _, e := range c.Edges {
			fmt.Fprintf(tw, "  %s ~ %s\tscore %d\t%s\n", e.IDA, e.IDB, e.Score, e.Reason)
		}
	}
	return tw.Flush()
}
