// Package config locates a review project and loads its configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrNotProject is returned when no .snowball directory is found.
var ErrNotProject = eris.New("not in a snowball project (no .snowball directory found)")

const (
	ProjectDir = ".snowball"
	ConfigFile = "config.yml"
	EnvPrefix  = "SNOWBALL"
)

// Config is the review configuration stored in .snowball/config.yml.
type Config struct {
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Metadata MetadataConfig `yaml:"metadata" mapstructure:"metadata"`
	Review   ReviewConfig   `yaml:"review" mapstructure:"review"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Dedup    DedupConfig    `yaml:"dedup" mapstructure:"dedup"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// SearchConfig describes the review's inclusion criteria.
type SearchConfig struct {
	StartYear  int      `yaml:"start_year" mapstructure:"start_year"`
	EndYear    int      `yaml:"end_year" mapstructure:"end_year"`
	VenueRanks []string `yaml:"venue_ranks" mapstructure:"venue_ranks"`
	Method     string   `yaml:"method" mapstructure:"method"`
	// ProxyKey is the proxy URL for publisher requests, or the name of the
	// env var holding it.
	ProxyKey   string   `yaml:"proxy_key,omitempty" mapstructure:"proxy_key"`
}

// PathsConfig holds file locations. Relative paths are relative to the
// project root.
type PathsConfig struct {
	DB          string `yaml:"db" mapstructure:"db"`
	InitialFile string `yaml:"initial_file" mapstructure:"initial_file"`
	Candidates  string `yaml:"candidates" mapstructure:"candidates"`
	Library     string `yaml:"library" mapstructure:"library"`
	CoreTable   string `yaml:"core_table" mapstructure:"core_table"`
	CSV         string `yaml:"csv" mapstructure:"csv"`
	Downloads   string `yaml:"downloads" mapstructure:"downloads"`
}

// MetadataConfig toggles the metadata sub-checks.
type MetadataConfig struct {
	Venue    bool `yaml:"venue" mapstructure:"venue"`
	Year     bool `yaml:"year" mapstructure:"year"`
	Language bool `yaml:"language" mapstructure:"language"`
	Download bool `yaml:"download" mapstructure:"download"`
}

type ReviewConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// FetchConfig tunes the bibtex fetch stage.
type FetchConfig struct {
	Workers            int     `yaml:"workers" mapstructure:"workers"`
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs int     `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

type DedupConfig struct {
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	Similarity string  `yaml:"similarity" mapstructure:"similarity"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var defaults = map[string]interface{}{
	"search.start_year":          0,
	"search.end_year":            0,
	"search.venue_ranks":         []string{"A*", "A", "Q1"},
	"search.method":              "file",
	"search.proxy_key":           "",
	"paths.db":                   ".snowball/snowball.db",
	"paths.initial_file":         "initial.txt",
	"paths.candidates":           "candidates.jsonl",
	"paths.library":              "library.bib",
	"paths.core_table":           "core.csv",
	"paths.csv":                  "articles.csv",
	"paths.downloads":            "pdfs",
	"metadata.venue":             true,
	"metadata.year":              true,
	"metadata.language":          true,
	"metadata.download":          true,
	"review.batch_size":          20,
	"fetch.workers":              3,
	"fetch.batch_size":           20,
	"fetch.max_attempts":         3,
	"fetch.initial_backoff_secs": 20,
	"fetch.rate_per_sec":         1.0,
	"dedup.threshold":            0.8,
	"dedup.similarity":           "sequence",
	"log.level":                  "info",
	"log.format":                 "console",
}

// Default returns the configuration used when a key is not set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// ProjectPath returns the .snowball directory under root.
func ProjectPath(root string) string {
	return filepath.Join(root, ProjectDir)
}

// ConfigPath returns the path to config.yml under root.
func ConfigPath(root string) string {
	return filepath.Join(root, ProjectDir, ConfigFile)
}

// IsProject checks if root contains a .snowball directory.
func IsProject(root string) bool {
	info, err := os.Stat(ProjectPath(root))
	return err == nil && info.IsDir()
}

// FindProject walks up from start to the nearest project root.
func FindProject(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrap(err, "resolving path")
	}
	for {
		if IsProject(abs) {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotProject
		}
		abs = parent
	}
}

// Load reads the project configuration. Missing keys take defaults and
// SNOWBALL_<SECTION>_<KEY> environment variables override the file.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(ConfigPath(root))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, eris.Wrap(err, "config: read file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to root's config.yml, creating the
// project directory if needed.
func (c *Config) Save(root string) error {
	if err := os.MkdirAll(ProjectPath(root), 0o755); err != nil {
		return eris.Wrap(err, "creating project directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "encoding config")
	}
	return eris.Wrap(os.WriteFile(ConfigPath(root), data, 0o644), "writing config")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Search.StartYear > 0 && c.Search.EndYear > 0 && c.Search.StartYear > c.Search.EndYear {
		return eris.Errorf("config: start_year %d is after end_year %d", c.Search.StartYear, c.Search.EndYear)
	}
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 1 {
		return eris.Errorf("config: dedup threshold %v outside [0,1]", c.Dedup.Threshold)
	}
	if c.Fetch.Workers < 1 {
		return eris.Errorf("config: fetch workers must be positive, got %d", c.Fetch.Workers)
	}
	return nil
}

// Resolve returns path relative to root unless it is absolute. A leading
// ~ is expanded to the home directory.
func Resolve(root, path string) string {
	path = ExpandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
