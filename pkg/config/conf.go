// Package config loads the qscore settings file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file name inside the config directory.
	FileName = "config.yaml"

	// EnvRepository names the repository discovery queries, as set by GitHub Actions.
	EnvRepository = "GITHUB_REPOSITORY"

	dirMode  = 0700
	fileMode = 0600
)

var validate = validator.New()

// Config is the complete qscore configuration.
type Config struct {
	Submissions SubmissionsConfig `yaml:"submissions"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Output      OutputConfig      `yaml:"output"`
	History     HistoryConfig     `yaml:"history"`
	GitHub      GitHubConfig      `yaml:"github"`
	Server      ServerConfig      `yaml:"server"`
}

// SubmissionsConfig locates submission datasets.
type SubmissionsConfig struct {
	Dir       string   `yaml:"dir" default:"submissions" validate:"required"`
	FileNames []string `yaml:"file_names" default:"[\"dataset.parquet\",\"dataset.csv\"]" validate:"required,min=1,dive,required"`
}

// Params is a sigma0/zoff pair.
type Params struct {
	Sigma0  float64 `yaml:"sigma0"`
	ZOffset float64 `yaml:"zoff"`
}

// BinsConfig defines the z buckets.
type BinsConfig struct {
	Min  float64 `yaml:"min" default:"-0.6"`
	Max  float64 `yaml:"max" default:"0.6" validate:"gtfield=Min"`
	Step float64 `yaml:"step" default:"0.05" validate:"gt=0"`
}

// ScoringConfig controls how submissions are scored.
type ScoringConfig struct {
	Mode          string     `yaml:"mode" default:"fixed" validate:"oneof=fixed free"`
	Reference     Params     `yaml:"reference" default:"{\"Sigma0\":0.2586,\"ZOffset\":0.0214}"`
	Seed          Params     `yaml:"seed" default:"{\"Sigma0\":0.2}"`
	MaxIterations int        `yaml:"max_iterations" default:"200" validate:"gt=0"`
	Bins          BinsConfig `yaml:"bins"`
}

// OutputConfig names the files a run writes.
type OutputConfig struct {
	Results     string `yaml:"results" default:"scoring_results.json" validate:"required"`
	Leaderboard string `yaml:"leaderboard" default:"leaderboard/leaderboard.json" validate:"required"`
	Strict      bool   `yaml:"strict"`
	// Metrics is an optional Prometheus textfile written after each score run.
	Metrics string `yaml:"metrics"`
}

// HistoryConfig selects the run history database. An empty DSN means a
// sqlite file in the config directory.
type HistoryConfig struct {
	DSN      string `yaml:"dsn"`
	Disabled bool   `yaml:"disabled"`
}

// GitHubConfig configures change-list discovery.
type GitHubConfig struct {
	Repository string        `yaml:"repository" validate:"omitempty,contains=/"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Prefix     string        `yaml:"prefix" default:"submissions" validate:"required"`
	Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Address string `yaml:"address" default:"127.0.0.1:8080" validate:"required,hostname_port"`
}

// Default returns a config with every default applied.
func Default() (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}
	return c, nil
}

// Validate checks the config values.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv fills unset values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.GitHub.Repository == "" {
		c.GitHub.Repository = strings.TrimSpace(getenv(EnvRepository))
	}
}

// Load reads the config file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("config file not found, using defaults", "path", path)
			return c, c.Validate()
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to the config file in dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads the config from dirPath, writing the defaults there first
// when no config file exists.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("creating dir %s: %w", dirPath, err)
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c, err := Default()
		if err != nil {
			return nil, err
		}
		if err := Save(dirPath, c); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
	}

	return Load(path)
}

// GetOrCreateHomeDir returns the named directory under the user's home,
// creating it if needed. The created flag reports whether it was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
