package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/config"
	"github.com/halvari/crmdedup/internal/export"
	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/match"
	"github.com/halvari/crmdedup/internal/types"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Report exact-key duplicate groups",
	Long: `Group companies whose normalized keys collide under the enabled match
strategies and write one CSV row per group member.

Strategies:
  domain                exact normalized website domain
  name                  exact normalized company name
  business-id           exact normalized business identifier
  contact-email-domain  dominant contact email domain, for records
                        that have no domain of their own

The contact-email-domain strategy calls the contacts API for every
domainless company, so it is noticeably slower than the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDuplicates(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	duplicatesCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	duplicatesCmd.Flags().StringP("strategy", "s", "", "Comma-separated strategies (default from config)")
	rootCmd.AddCommand(duplicatesCmd)
}

func runDuplicates(cmd *cobra.Command) error {
	outPath, _ := cmd.Flags().GetString("output")

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

	matcher := match.New(client, logger)
	groups, err := matcher.Groups(ctx, records, strategies)
	if err != nil {
		return err
	}

	members := 0
	for _, g := range groups {
		members += len(g.Members)
	}
	fmt.Fprintf(os.Stderr, "%s Found %d duplicate groups covering %d records\n", green("✓"), len(groups), members)

	return writeReport(outPath, func(w io.Writer) error {
		return export.WriteGroups(w, groups)
	})
}

// strategiesFlag returns the strategies from --strategy when given,
// otherwise the configured ones.
func strategiesFlag(cmd *cobra.Command, configured []types.MatchStrategy) ([]types.MatchStrategy, error) {
	raw, _ := cmd.Flags().GetString("strategy")
	if raw == "" {
		return configured, nil
	}
	strategies, err := config.ParseStrategies(strings.Split(raw, ","))
	if err != nil {
		return nil, fmt.Errorf("invalid --strategy: %w", err)
	}
	return strategies, nil
}
