package main

import (
	"os"

	"github.com/matsen/snowball/internal/storage"
	"github.com/matsen/snowball/internal/venue"
	"github.com/spf13/cobra"
)

var venuesIter int

func init() {
	venuesCmd.Flags().IntVar(&venuesIter, "iteration", -1, "Iteration whose venues are ranked (default: latest)")
	venuesCmd.AddCommand(venuesSetCmd)
	venuesCmd.AddCommand(venuesListCmd)
	rootCmd.AddCommand(venuesCmd)
}

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Rank the venues named by an iteration's BibTeX entries",
	Long: `Collect the venues of an iteration and ask for the rank of each venue not
yet ranked. Suggestions come from the CORE-style table at paths.core_table
when it exists. Preprint servers are ranked NA automatically.`,
	Args: cobra.NoArgs,
	Run:  runVenues,
}

func runVenues(cmd *cobra.Command, args []string) {
	p := mustOpenProject()
	defer p.Close()
	ctx := cmd.Context()
	iteration := mustIteration(ctx, p.db, venuesIter)

	var table *venue.CoreTable
	if path := p.path(p.cfg.Paths.CoreTable); path != "" {
		if _, err := os.Stat(path); err == nil {
			t, err := venue.LoadCoreTable(path)
			if err != nil {
				exitWithError(ExitDataError, "%v", err)
			}
			table = t
		}
	}

	recs, err := p.db.Records(ctx, storage.Iteration(iteration))
	exitOnError(err, "reading records")
	term, done := newTerminal()
	defer done()

	res, err := venue.Classify(ctx, p.db, venue.Collect(recs), table, term)
	if err != nil {
		done()
		exitOnError(err, "ranking venues")
	}
	output(res, func() {
		outputHuman("%d already ranked, %d preprints, %d ranked now\n", res.Known, res.Automatic, res.Chosen)
	})
}

var venuesSetCmd = &cobra.Command{
	Use:   "set <venue> <rank>",
	Short: "Record the rank of a venue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		rank, err := venue.ParseRank(args[1])
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		p := mustOpenProject()
		defer p.Close()
		err = p.db.PutVenueRanks(cmd.Context(), storage.VenueRank{Venue: args[0], Rank: string(rank)})
		exitOnError(err, "saving rank")
		output(storage.VenueRank{Venue: args[0], Rank: string(rank)}, func() {
			outputHuman("%s: %s\n", args[0], rank)
		})
	},
}

var venuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ranked venues",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := mustOpenProject()
		defer p.Close()
		ranks, err := p.db.VenueRanks(cmd.Context())
		exitOnError(err, "reading ranks")
		output(ranks, func() {
			for _, r := range ranks {
				outputHuman("%-4s %s\n", r.Rank, r.Venue)
			}
		})
	},
}
