package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/storage"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials, and connectivity",
	Long: `Run health checks for common crmdedup setup problems.

This command checks:
- Configuration file, .env, and environment parse cleanly
- HubSpot access token is present
- HubSpot API is reachable and accepts the token
- Audit database opens and is writable

Exit codes:
  0 - All checks passed (warnings allowed)
  1 - One or more checks failed
  2 - Critical failures that prevent crmdedup from running`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running crmdedup health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: configuration resolves
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, logger, err := loadConfig()
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Configuration does not load: %v", err))
			fmt.Printf("  %s Configuration does not load\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
			fmt.Printf("\n%s Critical failures prevent crmdedup from running\n", red("✗"))
			os.Exit(2)
		}
		fmt.Printf("  %s Configuration resolves\n", green("✓"))
		if verbose {
			fmt.Printf("    %s\n", cfg.String())
		}

		// Check 2: HubSpot credentials
		fmt.Printf("%s HubSpot credentials\n", cyan("→"))
		hasToken := strings.TrimSpace(cfg.HubSpot.Token) != ""
		if !hasToken {
			failures = append(failures, "HUBSPOT_TOKEN not set")
			fmt.Printf("  %s HUBSPOT_TOKEN not set\n", red("✗"))
			fmt.Printf("    export, duplicates, fuzzy, merge, and review need it\n")
		} else {
			fmt.Printf("  %s Access token is set\n", green("✓"))
			if verbose && len(cfg.HubSpot.Token) > 14 {
				token := cfg.HubSpot.Token
				fmt.Printf("    Token: %s...%s\n", token[:10], token[len(token)-4:])
			}
		}

		// Check 3: API connectivity. Resolving a known-bogus ID proves both
		// reachability and authorization: an accepted token gets a clean
		// not-found, a rejected one gets an auth error.
		fmt.Printf("%s HubSpot API\n", cyan("→"))
		if !hasToken {
			fmt.Printf("  %s Skipped (no token)\n", yellow("⚠"))
		} else if client, err := hubspot.New(cfg.HubSpot, logger); err != nil {
			failures = append(failures, fmt.Sprintf("Cannot build API client: %v", err))
			fmt.Printf("  %s Cannot build API client\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := client.ResolveAlias(ctx, "1")
			cancel()

			var authErr *crm.AuthError
			switch {
			case err == nil:
				fmt.Printf("  %s API reachable, token accepted\n", green("✓"))
			case errors.As(err, &authErr):
				failures = append(failures, "HubSpot rejected the token")
				fmt.Printf("  %s Token rejected (status %d)\n", red("✗"), authErr.StatusCode)
				fmt.Printf("    Check the private app's scopes and expiry\n")
			default:
				failures = append(failures, fmt.Sprintf("Cannot reach HubSpot API: %v", err))
				fmt.Printf("  %s Cannot reach API\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			}
		}

		// Check 4: audit database
		fmt.Printf("%s Audit database\n", cyan("→"))
		if store, err := storage.Open(cfg.DBPath); err != nil {
			failures = append(failures, fmt.Sprintf("Cannot open audit database: %v", err))
			fmt.Printf("  %s Cannot open %s\n", red("✗"), cfg.DBPath)
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Database opens: %s\n", green("✓"), cfg.DBPath)
			runs, err := store.ListRuns(context.Background(), 0)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Cannot query runs: %v", err))
				fmt.Printf("  %s Cannot query runs\n", yellow("⚠"))
			} else {
				fmt.Printf("  %s Contains %d recorded run(s)\n", green("✓"), len(runs))
			}
			store.Close()
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! crmdedup is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s crmdedup may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s crmdedup should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}
