package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/matsen/snowball/internal/discovery"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	seedInput      string
	discoverSource string
	expandIter     int
)

func init() {
	seedCmd.Flags().StringVar(&seedInput, "input", "", "File with one seed title per line (default: paths.initial_file)")
	seedCmd.Flags().StringVar(&discoverSource, "candidates", "", "JSONL candidates exported by the search tool (default: paths.candidates)")
	expandCmd.Flags().IntVar(&expandIter, "iteration", -1, "Iteration to create (default: latest + 1)")
	expandCmd.Flags().StringVar(&discoverSource, "candidates", "", "JSONL candidates exported by the search tool (default: paths.candidates)")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(expandCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create iteration 0 from known-relevant titles",
	Long: `Look up each seed title with the search backend and store the matches
as iteration 0, already content-approved. Rerunning skips titles seen before.`,
	Args: cobra.NoArgs,
	Run:  runSeed,
}

func mustBackend(p *project) *discovery.FileBackend {
	path := discoverSource
	if path == "" {
		path = p.cfg.Paths.Candidates
	}
	b, err := discovery.LoadFileBackend(p.cfg.Search.Method, p.path(path))
	if err != nil {
		exitWithError(ExitDataError, "loading candidates: %v", err)
	}
	return b
}

func readTitles(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var titles []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, sc.Err()
}

func runSeed(cmd *cobra.Command, args []string) {
	p := mustOpenProject()
	defer p.Close()

	input := seedInput
	if input == "" {
		input = p.cfg.Paths.InitialFile
	}
	titles, err := readTitles(p.path(input))
	if err != nil {
		exitWithError(ExitDataError, "reading seed titles: %v", err)
	}
	if len(titles) == 0 {
		exitWithError(ExitDataError, "no titles in %s", input)
	}

	res, err := discovery.Seed(cmd.Context(), p.db, mustBackend(p), titles)
	exitOnError(err, "seeding")
	output(res, func() {
		outputHuman("Seeded %d of %d titles (%d already seen)\n", res.Inserted, res.Titles, res.Seen)
		for _, t := range res.Missing {
			outputHuman("  not found: %s\n", truncateString(t, TitleMaxLen))
		}
	})
}

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Run one snowball iteration",
	Long: `Collect the articles citing or cited by the content-approved articles of
the previous iteration. Titles seen in any earlier iteration are skipped.`,
	Args: cobra.NoArgs,
	Run:  runExpand,
}

func runExpand(cmd *cobra.Command, args []string) {
	p := mustOpenProject()
	defer p.Close()
	ctx := cmd.Context()

	iteration := expandIter
	if iteration < 0 {
		iteration = mustIteration(ctx, p.db, -1) + 1
	}
	res, err := discovery.Expand(ctx, p.db, mustBackend(p), iteration)
	if err != nil && eris.Is(err, discovery.ErrNoSeeds) {
		exitWithError(ExitDataError, "%v\n\nRun 'snowball status' to see which stages are complete.", err)
	}
	exitOnError(err, "expanding")
	output(res, func() {
		outputHuman("Iteration %d: %d seeds, %d found, %d new, %d already seen\n",
			res.Iteration, res.Seeds, res.Discovered, res.Inserted, res.Suppressed)
	})
}
