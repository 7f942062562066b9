// Package review implements merge.Reviewer: the gate between a computed
// merge plan and its execution. Prompt asks a human per group over a
// readline session; Auto answers every prompt with a fixed decision, which
// is what the non-interactive modes and the executor tests use.
package review

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/halvari/crmdedup/internal/merge"
	"github.com/halvari/crmdedup/internal/plan"
	"github.com/halvari/crmdedup/internal/types"
)

var (
	_ merge.Reviewer = Auto("")
	_ merge.Reviewer = (*Prompt)(nil)
)

// Auto is a reviewer that returns the same decision for every merge.
// review.Auto(types.DecisionMergeOne) approves everything.
type Auto types.ReviewDecision

// ReviewMerge implements merge.Reviewer.
func (a Auto) ReviewMerge(plan.Result, string, string) (types.ReviewDecision, error) {
	return types.ReviewDecision(a), nil
}

// Prompt is an interactive reviewer. It shows each group once (members,
// proposed survivor, and the reason the survivor was chosen) and asks for
// y, n, a, or q. The executor asks per mergee, so the answer for a group is
// remembered and replayed for that group's remaining mergees.
//
// Prompt is not safe for concurrent use; the executor runs review mode
// sequentially.
type Prompt struct {
	rl  *readline.Instance
	out io.Writer

	lastKey      string
	lastDecision types.ReviewDecision
}

// NewPrompt opens a readline session on the process terminal. Close must be
// called to restore the terminal state.
func NewPrompt() (*Prompt, error) {
	return newPrompt(&readline.Config{
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
}

func newPrompt(cfg *readline.Config) (*Prompt, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = color.New(color.FgCyan).Sprint("merge? [y/n/a/q] ")
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Prompt{rl: rl, out: rl.Stdout()}, nil
}

// Close releases the readline session.
func (p *Prompt) Close() error {
	return p.rl.Close()
}

// ReviewMerge implements merge.Reviewer. group.Plan is never nil here: the
// executor only reviews groups that have work. EOF and Ctrl+C both mean
// quit; walking away from a review session must never merge anything.
func (p *Prompt) ReviewMerge(group plan.Result, primaryID, mergeeID string) (types.ReviewDecision, error) {
	if group.GroupKey == p.lastKey {
		return p.lastDecision, nil
	}

	p.printGroup(group)

	for {
		line, err := p.rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			fmt.Fprintln(p.out, "stopping review")
			return types.DecisionQuit, nil
		}
		if err != nil {
			return "", fmt.Errorf("reading answer: %w", err)
		}

		decision, ok := parseAnswer(line)
		if !ok {
			fmt.Fprintln(p.out, "  answer y (merge), n (skip), a (merge all remaining), or q (quit)")
			continue
		}

		switch decision {
		case types.DecisionMergeOne, types.DecisionSkipOne:
			// Replayed for this group's remaining mergees.
			p.lastKey = group.GroupKey
			p.lastDecision = decision
		}
		return decision, nil
	}
}

// parseAnswer maps one input line to a decision. Unrecognized input returns
// ok=false and the caller re-prompts.
func parseAnswer(line string) (types.ReviewDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return types.DecisionMergeOne, true
	case "n", "no":
		return types.DecisionSkipOne, true
	case "a", "all":
		return types.DecisionMergeAllRemaining, true
	case "q", "quit":
		return types.DecisionQuit, true
	}
	return "", false
}

func (p *Prompt) printGroup(g plan.Result) {
	pl := g.Plan
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(p.out, "\n%s  %d records, keep %s\n",
		bold(g.GroupKey), len(pl.MergeeIDs)+1, pl.PrimaryID)

	w := tabwriter.NewWriter(p.out, 2, 4, 2, ' ', 0)
	printMember(w, "keep", pl.PrimaryID, g.Representatives[pl.PrimaryID])
	for _, id := range pl.MergeeIDs {
		printMember(w, "merge", id, g.Representatives[id])
	}
	w.Flush()
	fmt.Fprintf(p.out, "  survivor chosen by %s\n", pl.Reason)
}

func printMember(w io.Writer, verb, id string, rec types.Record) {
	created := rec.RawCreatedAt
	if created == "" {
		created = "-"
	}
	domain := rec.Domain
	if domain == "" {
		domain = "-"
	}
	fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", verb, id, rec.Name, domain, created)
}
