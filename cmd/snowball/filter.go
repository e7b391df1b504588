package main

import (
	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/selection"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/matsen/snowball/internal/venue"
	"github.com/spf13/cobra"
)

var (
	filterIter    int
	filterReasons bool
	filterSkip    []string
)

func init() {
	filterCmd.PersistentFlags().IntVar(&filterIter, "iteration", -1, "Iteration to review (default: latest)")
	filterMetadataCmd.Flags().StringSliceVar(&filterSkip, "skip-check", nil, "Metadata checks to disable (venue, year, language, download)")
	for _, c := range []*cobra.Command{filterTitleCmd, filterAbstractCmd, filterContentCmd} {
		c.Flags().BoolVar(&filterReasons, "reasons", false, "Ask for a reason after each decision")
		filterCmd.AddCommand(c)
	}
	filterCmd.AddCommand(filterMetadataCmd)
	rootCmd.AddCommand(filterCmd)
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Review an iteration at one selection stage",
	Long: `Move records one stage forward or flag them out.

Stages, in order:
  metadata   NOT_SELECTED -> METADATA_APPROVED
  title      METADATA_APPROVED -> TITLE_APPROVED
  abstract   TITLE_APPROVED -> ABSTRACT_INTRO_APPROVED
  content    ABSTRACT_INTRO_APPROVED -> CONTENT_APPROVED

Answer y (keep), n (flag out), s (skip for now) or q (save and stop).
Decisions are saved in batches; rerunning a stage only asks about records
still undecided.`,
}

var filterMetadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Venue, year, language and download checks",
	Args:  cobra.NoArgs,
	Run:   runFilterMetadata,
}

func runFilterMetadata(cmd *cobra.Command, args []string) {
	p := mustOpenProject()
	defer p.Close()
	ctx := cmd.Context()
	iteration := mustIteration(ctx, p.db, filterIter)

	accepted, err := venue.ParseRanks(p.cfg.Search.VenueRanks)
	if err != nil {
		exitWithError(ExitConfigError, "search.venue_ranks: %v", err)
	}
	mc := p.cfg.Metadata
	checks := selection.MetadataChecks{
		Venue:    mc.Venue,
		Year:     mc.Year,
		Language: mc.Language,
		Download: mc.Download,
		YearFrom: p.cfg.Search.StartYear,
		YearTo:   p.cfg.Search.EndYear,
	}
	for _, s := range filterSkip {
		f, err := article.ParseFlag(s)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		switch f {
		case article.FlagVenue:
			checks.Venue = false
		case article.FlagYear:
			checks.Year = false
		case article.FlagLanguage:
			checks.Language = false
		case article.FlagDownload:
			checks.Download = false
		default:
			exitWithError(ExitError, "%s is not a metadata check", s)
		}
	}

	m := &selection.Metadata{
		Store:     p.db,
		BatchSize: p.cfg.Review.BatchSize,
		Venues:    venue.NewChecker(p.db, accepted),
		Checks:    checks,
	}
	if checks.Download {
		m.Probe = p.probe()
	}

	recs, err := p.db.Records(ctx, storage.Iteration(iteration))
	exitOnError(err, "reading records")
	term, done := newTerminal()
	res, err := m.Run(ctx, recs, term)
	done()
	exitOnError(err, "metadata review")
	outputResult("metadata", iteration, res)
}

var (
	filterTitleCmd = &cobra.Command{
		Use:   "title",
		Short: "Review titles",
		Args:  cobra.NoArgs,
		Run:   func(cmd *cobra.Command, args []string) { runReview(cmd, stage.TitleApproved) },
	}
	filterAbstractCmd = &cobra.Command{
		Use:   "abstract",
		Short: "Review abstracts and introductions",
		Args:  cobra.NoArgs,
		Run:   func(cmd *cobra.Command, args []string) { runReview(cmd, stage.AbstractIntroApproved) },
	}
	filterContentCmd = &cobra.Command{
		Use:   "content",
		Short: "Review full texts",
		Args:  cobra.NoArgs,
		Run:   func(cmd *cobra.Command, args []string) { runReview(cmd, stage.ContentApproved) },
	}
)

func runReview(cmd *cobra.Command, target stage.Stage) {
	review, err := selection.ReviewFor(target)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	p := mustOpenProject()
	defer p.Close()
	ctx := cmd.Context()
	iteration := mustIteration(ctx, p.db, filterIter)

	recs, err := p.db.Records(ctx, storage.Iteration(iteration))
	exitOnError(err, "reading records")

	runner := selection.NewRunner(p.db)
	if p.cfg.Review.BatchSize > 0 {
		runner.BatchSize = p.cfg.Review.BatchSize
	}
	term, done := newTerminal()
	term.AskReasons = filterReasons
	res, err := runner.Run(ctx, recs, review, term)
	done()
	exitOnError(err, review.Name+" review")
	outputResult(review.Name, iteration, res)
}

// FilterResponse reports one review run.
type FilterResponse struct {
	Stage     string           `json:"stage"`
	Iteration int              `json:"iteration"`
	Result    selection.Result `json:"result"`
}

func outputResult(name string, iteration int, res selection.Result) {
	output(FilterResponse{Stage: name, Iteration: iteration, Result: res}, func() {
		outputHuman("%s review of iteration %d: %d kept, %d flagged out, %d skipped",
			name, iteration, res.Advanced, res.Rejected, res.Skipped)
		if res.Pending > 0 {
			outputHuman(", %d waiting for bibtex", res.Pending)
		}
		if res.Quit {
			outputHuman(" (stopped early)")
		}
		outputHuman("\n")
	})
}
