package main

import (
	"os"
	"path/filepath"

	"github.com/matsen/snowball/internal/config"
	"github.com/matsen/snowball/internal/venue"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	initStartYear  int
	initEndYear    int
	initVenueRanks []string
	initMethod     string
)

func init() {
	initCmd.Flags().IntVar(&initStartYear, "start-year", 0, "First publication year accepted")
	initCmd.Flags().IntVar(&initEndYear, "end-year", 0, "Last publication year accepted")
	initCmd.Flags().StringSliceVar(&initVenueRanks, "venue-ranks", nil, "Accepted venue ranks (e.g. A*,A,Q1)")
	initCmd.Flags().StringVar(&initMethod, "method", "", "Search method name recorded on discovered records")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a snowball project",
	Long: `Create a .snowball directory with a config.yml and an empty record store.

Examples:
  snowball init --start-year 2015 --end-year 2024 --venue-ranks 'A*,A,Q1'`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		exitWithError(ExitError, "resolving path: %v", err)
	}
	if config.IsProject(root) {
		exitWithError(ExitConfigError, "%s is already a snowball project", root)
	}

	cfg := config.Default()
	cfg.Search.StartYear = initStartYear
	cfg.Search.EndYear = initEndYear
	if len(initVenueRanks) > 0 {
		if _, err := venue.ParseRanks(initVenueRanks); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		cfg.Search.VenueRanks = initVenueRanks
	}
	if initMethod != "" {
		cfg.Search.Method = initMethod
	}
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	dbPath := config.Resolve(root, cfg.Paths.DB)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		exitWithError(ExitError, "creating database directory: %v", err)
	}
	mustOpenDatabase(dbPath).Close()

	output(StatusResponse{Status: "initialized", Path: root}, func() {
		outputHuman("Initialized snowball project in %s\n", root)
	})
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults and SNOWBALL_* environment overrides.

Environment variables use the section and key, e.g. SNOWBALL_FETCH_WORKERS=5.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(mustFindProject())
		output(cfg, func() {
			data, err := yaml.Marshal(cfg)
			if err != nil {
				exitWithError(ExitError, "encoding config: %v", err)
			}
			outputHuman("%s", data)
		})
	},
}
