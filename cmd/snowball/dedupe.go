package main

import (
	"github.com/matsen/snowball/internal/dedup"
	"github.com/spf13/cobra"
)

var (
	dedupeDryRun     bool
	dedupeAuto       bool
	dedupeIterations string
	dedupeThreshold  float64
)

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeDryRun, "dry-run", false, "Show the plan without making changes")
	dedupeCmd.Flags().BoolVar(&dedupeAuto, "auto", false, "Keep the more cited (then newer) article without asking")
	dedupeCmd.Flags().StringVar(&dedupeIterations, "iterations", "", "Comma-separated iterations to compare (default: all)")
	dedupeCmd.Flags().Float64Var(&dedupeThreshold, "threshold", 0, "Title similarity threshold (default: dedup.threshold)")
	rootCmd.AddCommand(dedupeCmd)
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Retire duplicate content-approved articles",
	Long: `Find content-approved articles with near-identical titles and keep one of
each pair. Retired articles move to the DUPLICATE stage.

Examples:
  snowball dedupe --dry-run --auto   # Show what automatic resolution would do
  snowball dedupe                    # Decide each pair interactively`,
	Args: cobra.NoArgs,
	Run:  runDedupe,
}

// DedupeResponse reports a dedupe run.
type DedupeResponse struct {
	DryRun    bool          `json:"dry_run"`
	Threshold float64       `json:"threshold"`
	Summary   dedup.Summary `json:"summary"`
}

func runDedupe(cmd *cobra.Command, args []string) {
	iterations, err := parseIterations(dedupeIterations)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	p := mustOpenProject()
	defer p.Close()

	threshold := p.cfg.Dedup.Threshold
	if dedupeThreshold > 0 {
		threshold = dedupeThreshold
	}
	sim, ok := dedup.ByName(p.cfg.Dedup.Similarity)
	if !ok {
		exitWithError(ExitConfigError, "unknown dedup.similarity %q", p.cfg.Dedup.Similarity)
	}

	var chooser dedup.Chooser = dedup.AutoChooser{}
	done := func() {}
	if !dedupeAuto {
		term, closeTerm := newTerminal()
		chooser, done = term, closeTerm
	}
	sum, err := dedup.Run(cmd.Context(), p.db, iterations, threshold, sim, chooser, dedupeDryRun)
	done()
	exitOnError(err, "resolving duplicates")

	output(DedupeResponse{DryRun: dedupeDryRun, Threshold: threshold, Summary: sum}, func() {
		if sum.Pairs == 0 {
			outputHuman("No duplicates found among %d articles.\n", sum.Pool)
			return
		}
		verb := "Retired"
		if dedupeDryRun {
			verb = "Would retire"
		}
		outputHuman("%d candidate pairs among %d articles. %s %d, kept both in %d pairs.\n",
			sum.Pairs, sum.Pool, verb, len(sum.Plan.Remove), sum.Plan.KeptBoth)
		for _, k := range sum.Plan.Remove {
			outputHuman("  %s (iteration %d)\n", k.ID, k.Iteration)
		}
	})
}
