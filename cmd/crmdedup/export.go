package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/export"
	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/resolve"
	"github.com/halvari/crmdedup/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the company snapshot as semicolon-delimited CSV",
	Long: `Fetch every company from HubSpot and write one CSV row per record.

With --resolve, each row additionally carries the record's canonical ID and
chain status (live, redirected, cycle, broken), computed by walking
merged-record forwarding chains. Resolving costs one extra API call per
chain hop, so the flag is off by default.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runExport(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	exportCmd.Flags().Bool("resolve", false, "Resolve each record's canonical chain")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command) error {
	outPath, _ := cmd.Flags().GetString("output")
	withResolve, _ := cmd.Flags().GetBool("resolve")

	cfg, logger, err := loadConfig()
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

	var resolutions map[string]types.CanonicalResolution
	if withResolve {
		resolver := resolve.New(client, cfg.HopBudget, logger)
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		resolutions, err = resolver.ResolveMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("resolving chains: %w", err)
		}
		redirected := 0
		for _, res := range resolutions {
			if res.Status != types.ResolutionLive {
				redirected++
			}
		}
		fmt.Fprintf(os.Stderr, "%s Resolved %d chains (%d not live)\n", green("✓"), len(resolutions), redirected)
	}

	return writeReport(outPath, func(w io.Writer) error {
		return export.WriteCompanies(w, records, resolutions)
	})
}
