package main

import (
	"sort"

	"github.com/matsen/snowball/internal/stage"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count records per iteration and stage",
	Long: `Show how far each iteration has progressed: records per stage, records
flagged out by each check, and BibTeX fetch progress.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := mustOpenProject()
		defer p.Close()
		st, err := p.db.Status(cmd.Context())
		exitOnError(err, "reading status")
		output(st, func() {
			if len(st) == 0 {
				outputHuman("No records yet.\n")
				return
			}
			for _, it := range st {
				outputHuman("Iteration %d: %d records, %d without bibtex, %d NO_BIBTEX\n",
					it.Iteration, it.Total, it.Unfetched, it.NoBibTeX)
				for _, s := range stage.All() {
					if n := it.ByStage[s.String()]; n > 0 {
						outputHuman("  %-24s %d\n", s, n)
					}
				}
				flags := make([]string, 0, len(it.Flagged))
				for f := range it.Flagged {
					flags = append(flags, f)
				}
				sort.Strings(flags)
				for _, f := range flags {
					if n := it.Flagged[f]; n > 0 {
						outputHuman("  %-24s %d\n", f, n)
					}
				}
			}
		})
	},
}
