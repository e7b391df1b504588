// Package main provides the snowball CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matsen/snowball/internal/config"
	"github.com/matsen/snowball/internal/download"
	"github.com/matsen/snowball/internal/prompt"
	"github.com/matsen/snowball/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// logLevel overrides the configured log level when set
var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = zap.L().Sync()
	if err != nil {
		// SilenceErrors is set, so cobra errors would otherwise be invisible
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snowball",
	Short: "Snowball-sampling systematic literature review",
	Long: `snowball runs a snowball-sampling literature review.

Workflow per iteration:
  seed / expand       discover candidate articles
  bibtex              fetch BibTeX entries
  venues              rank the venues the entries name
  filter metadata     venue, year, language and download checks
  filter title        human review of titles
  filter abstract     human review of abstracts and introductions
  filter content      human review of full texts
  reconcile           resolve disagreements between raters
  dedupe              retire duplicate approved articles
  export              CSV, BibTeX, reasonings and XLSX views

All commands output JSON by default; use --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.Version = Version
}

// mustFindProject finds the project root from the working directory, exits on error.
func mustFindProject() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	root, err := config.FindProject(cwd)
	if err != nil {
		exitWithError(ExitConfigError, "%v\n\nRun 'snowball init' to create a project.", err)
	}
	return root
}

func findProjectQuiet() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return config.FindProject(cwd)
}

// mustLoadConfig loads .env files and the configuration, and installs the
// logger. Exits on error.
func mustLoadConfig(root string) *config.Config {
	config.LoadEnv(root)
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return cfg
}

// mustOpenDatabase opens the record store, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(path string) *storage.DB {
	db, err := storage.OpenDB(path)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// project bundles what most commands need.
type project struct {
	root string
	cfg  *config.Config
	db   *storage.DB
}

func mustOpenProject() *project {
	root := mustFindProject()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(config.Resolve(root, cfg.Paths.DB))
	return &project{root: root, cfg: cfg, db: db}
}

func (p *project) path(rel string) string {
	return config.Resolve(p.root, rel)
}

// probe returns the publisher probe, routed through search.proxy_key when set.
func (p *project) probe() *download.Probe {
	pr, err := download.NewProxyProbe(p.cfg.ProxyCredential())
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return pr
}

func (p *project) Close() {
	if err := p.db.Close(); err != nil {
		zap.L().Warn("closing database", zap.Error(err))
	}
}

// newTerminal returns the interactive collaborator. Prompts go to stderr
// so stdout carries only the command result.
func newTerminal() (*prompt.Terminal, func()) {
	in, err := prompt.NewLineReader(os.Stdin, os.Stderr)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return prompt.NewTerminal(in, os.Stderr), func() { in.Close() }
}

// mustIteration resolves --iteration, defaulting to the latest one.
func mustIteration(ctx context.Context, db *storage.DB, flag int) int {
	if flag >= 0 {
		return flag
	}
	last, err := db.MaxIteration(ctx)
	if err != nil {
		exitWithError(ExitError, "reading iterations: %v", err)
	}
	if last < 0 {
		exitWithError(ExitDataError, "no records yet\n\nRun 'snowball seed' first.")
	}
	return last
}
