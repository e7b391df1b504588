package main

import (
	"strings"

	"github.com/matsen/snowball/internal/reconcile"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	reconcileIter   int
	reconcileStage  string
	reconcileRaters []string
)

func init() {
	reconcileCmd.Flags().IntVar(&reconcileIter, "iteration", -1, "Iteration to reconcile (default: latest in the first store)")
	reconcileCmd.Flags().StringVar(&reconcileStage, "stage", "title", "Stage to reconcile (title, abstract, content)")
	reconcileCmd.Flags().StringArrayVar(&reconcileRaters, "rater", nil, "Rater store as name=path/to/db (repeat, at least two)")
	reconcileCmd.MarkFlagRequired("rater")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve disagreements between independent raters",
	Long: `Compare the stores of two or more raters who reviewed the same records and
resolve every record they disagree on at one stage.

Accept approves the record into the stage in every store; reject leaves it
one stage below in every store. Each resolution is written to all stores
and verified. If a store cannot be written the run stops with exit code 5
and the failing store is reported; rerun after fixing it.

Examples:
  snowball reconcile --stage title --rater alice=alice.db --rater bob=bob.db`,
	Args: cobra.NoArgs,
	Run:  runReconcile,
}

func parseRater(s string) (string, string, error) {
	name, path, ok := strings.Cut(s, "=")
	if !ok || name == "" || path == "" {
		return "", "", eris.Errorf("rater %q must be name=path", s)
	}
	return name, path, nil
}

func runReconcile(cmd *cobra.Command, args []string) {
	target, err := stage.Parse(reconcileStage)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if len(reconcileRaters) < 2 {
		exitWithError(ExitError, "at least two --rater stores are required")
	}
	ctx := cmd.Context()

	// Rater stores live outside the project, so only logging comes from it.
	if root, err := findProjectQuiet(); err == nil {
		mustLoadConfig(root)
	}

	var raters []reconcile.Rater
	var dbs []*storage.DB
	defer func() {
		for _, db := range dbs {
			db.Close()
		}
	}()
	for _, r := range reconcileRaters {
		name, path, err := parseRater(r)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		db := mustOpenDatabase(path)
		dbs = append(dbs, db)
		raters = append(raters, reconcile.Rater{Name: name, Store: db})
	}
	iteration := mustIteration(ctx, dbs[0], reconcileIter)

	term, done := newTerminal()
	sum, err := reconcile.Run(ctx, raters, iteration, target, term)
	done()
	if err != nil && !eris.Is(err, reconcile.ErrAborted) {
		if eris.Is(err, reconcile.ErrPartialApply) {
			outputJSON(sum)
		}
		exitOnError(err, "reconciling")
	}
	output(sum, func() {
		outputHuman("%s, iteration %d: %d disagreements, %d accepted, %d rejected, %d skipped\n",
			sum.Stage, sum.Iteration, sum.Disagreements, sum.Accepted, sum.Rejected, sum.Skipped)
		if sum.Aborted {
			outputHuman("Stopped early; rerun to continue.\n")
		}
	})
	if sum.Aborted {
		exitWithCode(ExitAborted)
	}
}
