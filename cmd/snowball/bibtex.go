package main

import (
	"time"

	"github.com/matsen/snowball/internal/bibtex"
	"github.com/matsen/snowball/internal/discovery"
	"github.com/matsen/snowball/internal/fetch"
	"github.com/matsen/snowball/internal/resilience"
	"github.com/matsen/snowball/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	bibtexIter    int
	bibtexWorkers int
)

func init() {
	bibtexCmd.Flags().IntVar(&bibtexIter, "iteration", -1, "Iteration to fetch (default: latest)")
	bibtexCmd.Flags().IntVar(&bibtexWorkers, "workers", 0, "Concurrent lookups (default: fetch.workers)")
	rootCmd.AddCommand(bibtexCmd)
}

var bibtexCmd = &cobra.Command{
	Use:   "bibtex",
	Short: "Fetch BibTeX entries for an iteration",
	Long: `Fetch a BibTeX entry for every record of an iteration that has none.

Sources are tried in order: the project's .bib library, then the search
backend. Entries naming a real venue are preferred over preprint entries.
Records no source can serve are marked NO_BIBTEX and are not retried.`,
	Args: cobra.NoArgs,
	Run:  runBibTeX,
}

// preferVenue accepts entries whose venue is a real publication venue.
func preferVenue(raw string) bool {
	return bibtex.ValidVenue(bibtex.Venue(raw))
}

func runBibTeX(cmd *cobra.Command, args []string) {
	p := mustOpenProject()
	defer p.Close()
	ctx := cmd.Context()
	iteration := mustIteration(ctx, p.db, bibtexIter)

	lib, err := bibtex.LoadLibrary(p.path(p.cfg.Paths.Library))
	if err != nil {
		exitWithError(ExitDataError, "loading bib library: %v", err)
	}
	sources := []fetch.Source{lib, discovery.BackendSource{Backend: mustBackend(p)}}

	fc := p.cfg.Fetch
	f := &fetch.Fetcher{
		Sources:   sources,
		Workers:   fc.Workers,
		BatchSize: fc.BatchSize,
		Retry: resilience.RetryConfig{
			MaxAttempts:    fc.MaxAttempts,
			InitialBackoff: time.Duration(fc.InitialBackoffSecs) * time.Second,
			JitterFraction: 0.1,
		},
		Prefer: preferVenue,
	}
	if bibtexWorkers > 0 {
		f.Workers = bibtexWorkers
	}
	if fc.RatePerSec > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(fc.RatePerSec), f.Workers)
	}

	recs, err := p.db.Records(ctx, storage.Filter{Iterations: []int{iteration}, Unfetched: true})
	exitOnError(err, "reading records")
	res, err := f.Run(ctx, p.db, iteration, recs)
	exitOnError(err, "fetching bibtex")
	output(res, func() {
		outputHuman("Iteration %d: %d found, %d missing, %d written in %d batches\n",
			iteration, res.Found, res.Missing, res.Written, res.Batches)
		for name, n := range res.BySource {
			outputHuman("  %s: %d\n", name, n)
		}
	})
}
