package main

import (
	"io"
	"os"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/export"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportIterations string
	exportOutput     string
	exportSynthesize bool
	exportAppend     bool
)

func init() {
	exportCmd.PersistentFlags().StringVar(&exportIterations, "iterations", "", "Comma-separated iterations (default: all)")
	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout; xlsx requires a file)")
	exportBibCmd.Flags().BoolVar(&exportSynthesize, "synthesize", false, "Build entries from record fields when none was fetched")
	exportBibCmd.Flags().BoolVar(&exportAppend, "append", false, "Append to --output, skipping articles it already holds")
	exportCmd.AddCommand(exportCSVCmd, exportBibCmd, exportReasoningsCmd, exportXLSXCmd)
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export content-approved articles",
	Long: `Write the content-approved articles in a downstream format.
Articles retired as duplicates are never exported.`,
}

func approved(cmd *cobra.Command, p *project) []article.Record {
	iterations, err := parseIterations(exportIterations)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	recs, err := p.db.Records(cmd.Context(), storage.Filter{
		Iterations: iterations,
		Stages:     []stage.Stage{stage.ContentApproved},
	})
	exitOnError(err, "reading records")
	return recs
}

// withOutput runs write against --output or stdout.
func withOutput(write func(w io.Writer) error) {
	if exportOutput == "" {
		if err := write(os.Stdout); err != nil {
			exitWithError(ExitError, "%v", err)
		}
		return
	}
	f, err := os.Create(exportOutput)
	if err != nil {
		exitWithError(ExitError, "creating %s: %v", exportOutput, err)
	}
	if err := write(f); err != nil {
		f.Close()
		exitWithError(ExitError, "%v", err)
	}
	if err := f.Close(); err != nil {
		exitWithError(ExitError, "closing %s: %v", exportOutput, err)
	}
}

// ExportResponse is printed when the export went to a file.
type ExportResponse struct {
	Format   string `json:"format"`
	Path     string `json:"path"`
	Articles int    `json:"articles"`
}

func reportExport(format string, n int) {
	if exportOutput == "" {
		return
	}
	output(ExportResponse{Format: format, Path: exportOutput, Articles: n}, func() {
		outputHuman("Wrote %d articles to %s\n", n, exportOutput)
	})
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Articles as CSV",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := mustOpenProject()
		defer p.Close()
		if exportOutput == "" && p.cfg.Paths.CSV != "" {
			exportOutput = p.path(p.cfg.Paths.CSV)
		}
		recs := approved(cmd, p)
		withOutput(func(w io.Writer) error { return export.WriteCSV(w, recs) })
		reportExport("csv", len(recs))
	},
}

var exportReasoningsCmd = &cobra.Command{
	Use:   "reasonings",
	Short: "Reviewer reasons as CSV",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := mustOpenProject()
		defer p.Close()
		recs := approved(cmd, p)
		withOutput(func(w io.Writer) error { return export.WriteReasonings(w, recs) })
		reportExport("reasonings", len(recs))
	},
}

var exportBibCmd = &cobra.Command{
	Use:   "bib",
	Short: "Articles as a .bib file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := mustOpenProject()
		defer p.Close()
		recs := approved(cmd, p)

		if exportAppend {
			if exportOutput == "" {
				exitWithError(ExitError, "--append requires --output")
			}
			res, err := export.AppendBibTeXFile(exportOutput, recs, exportSynthesize)
			exitOnError(err, "appending bibtex")
			output(res, func() {
				outputHuman("Appended %d entries to %s (%d skipped)\n", res.Written, exportOutput, res.Skipped)
			})
			return
		}

		var res export.BibResult
		withOutput(func(w io.Writer) error {
			var err error
			res, err = export.WriteBibTeX(w, recs, export.BibOptions{Synthesize: exportSynthesize})
			return err
		})
		reportExport("bib", res.Written)
	},
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Articles and reasons as an XLSX workbook",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if exportOutput == "" {
			exitWithError(ExitError, "xlsx export requires --output")
		}
		p := mustOpenProject()
		defer p.Close()
		recs := approved(cmd, p)
		exitOnError(export.WriteXLSX(exportOutput, recs), "writing xlsx")
		reportExport("xlsx", len(recs))
	},
}
