package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/review"
	"github.com/halvari/crmdedup/internal/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review and apply merges interactively",
	Long: `Walk through planned merges one group at a time, approving or skipping
each before anything is sent to the store.

Each prompt shows the group's records and the chosen survivor. Answers:
  y  merge this group
  n  skip this group
  a  merge everything remaining without further prompts
  q  stop the run

Review mode applies every approved merge immediately; there is no dry-run
variant. Interrupting the prompt (Ctrl+C or EOF) stops the run without
merging anything further.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReview(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	reviewCmd.Flags().StringP("strategy", "s", "", "Comma-separated strategies (default from config)")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command) error {
	prompt, err := review.NewPrompt()
	if err != nil {
		return fmt.Errorf("opening review prompt: %w", err)
	}
	defer prompt.Close()

	return runPipeline(cmd, types.RunReview, false, prompt)
}
