package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/qscore/pkg/config"
	"github.com/mchmarny/qscore/pkg/data"
	"github.com/mchmarny/qscore/pkg/logging"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "qscore"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Usage:   "Path to the config file (default: ~/.qscore/config.yaml)",
		EnvVars: []string{"QSCORE_CONFIG"},
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	logFormatFlag = &urfave.StringFlag{
		Name:  "log-format",
		Usage: "Log format [cli, text, json]",
		Value: logging.FormatCLI,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultLogger(logging.FormatCLI, "info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	Debug  bool
	Format string
	Config *config.Config
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

// historyDSN returns the configured history database, or the sqlite file in
// the config directory.
func (a *appConfig) historyDSN() string {
	if a.Config.History.DSN != "" {
		return a.Config.History.DSN
	}
	return filepath.Join(a.Dir, data.DataFileName)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Score q-variance submissions and maintain the leaderboard",
		Flags: []urfave.Flag{
			debugFlag,
			configFlag,
			formatFlag,
			logFormatFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			updateCmd,
			leaderboardCmd,
			baselineCmd,
			historyCmd,
			serveCmd,
			authCmd,
			resetCmd,
		},
		Before: func(c *urfave.Context) error {
			level := "info"
			if c.Bool(debugFlag.Name) {
				level = "debug"
			}
			slog.SetDefault(logging.NewLogger(c.App.ErrWriter, c.String(logFormatFlag.Name), level))

			cfg, dir, err := loadConfig(c.String(configFlag.Name))
			if err != nil {
				return err
			}
			cfg.ApplyEnv(os.Getenv)

			format := formatJSON
			if f := c.String(formatFlag.Name); f == formatYAML || f == "yml" {
				format = formatYAML
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				Dir:    dir,
				Debug:  c.Bool(debugFlag.Name),
				Format: format,
				Config: cfg,
			}
			return nil
		},
	}
}

// loadConfig reads the config at path, or the one in the home config dir
// when path is empty. It returns the directory holding local state.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, filepath.Dir(path), nil
	}

	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("home dir unavailable, using defaults", "error", err)
		cfg, err := config.Default()
		if err != nil {
			return nil, "", err
		}
		return cfg, ".", nil
	}
	if created {
		slog.Debug("created config dir", "path", dir)
	}

	cfg, err := config.ReadOrCreate(dir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, dir, nil
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// output writes v to the app's writer in the selected output format.
func output(c *urfave.Context, v any) error {
	return encode(c.App.Writer, getConfig(c).Format, v)
}
