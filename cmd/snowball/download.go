package main

import (
	"github.com/matsen/snowball/internal/download"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	downloadIterations string
	downloadDir        string
	downloadStage      string
)

func init() {
	downloadCmd.Flags().StringVar(&downloadIterations, "iterations", "", "Comma-separated iterations (default: all)")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "Output directory (default: paths.downloads)")
	downloadCmd.Flags().StringVar(&downloadStage, "stage", "content", "Download articles at this stage (e.g. abstract to prepare the content review)")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download article PDFs",
	Long: `Save <id>.pdf for every article at the given stage that has an eprint URL.
Landing pages are searched for the PDF link. Existing files are kept and
files that are not readable PDFs are removed.`,
	Args: cobra.NoArgs,
	Run:  runDownload,
}

func runDownload(cmd *cobra.Command, args []string) {
	iterations, err := parseIterations(downloadIterations)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	s, err := stage.Parse(downloadStage)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	p := mustOpenProject()
	defer p.Close()

	dir := downloadDir
	if dir == "" {
		dir = p.path(p.cfg.Paths.Downloads)
	}
	recs, err := p.db.Records(cmd.Context(), storage.Filter{Iterations: iterations, Stages: []stage.Stage{s}})
	exitOnError(err, "reading records")

	d := &download.Downloader{Probe: p.probe()}
	if p.cfg.Fetch.RatePerSec > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(p.cfg.Fetch.RatePerSec), 1)
	}
	res, err := d.DownloadAll(cmd.Context(), recs, dir)
	exitOnError(err, "downloading")
	output(res, func() {
		outputHuman("%d downloaded, %d already present, %d without URL, %d failed\n",
			res.Downloaded, res.Existing, res.NoURL, len(res.Failed))
		for _, id := range res.Failed {
			outputHuman("  failed: %s\n", id)
		}
		for _, id := range res.Mismatched {
			outputHuman("  title not found in pdf: %s\n", id)
		}
	})
}
