package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/qscore/pkg/leaderboard"
	"github.com/mchmarny/qscore/pkg/score"
	"github.com/urfave/cli/v2"
)

var (
	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: "Only show the first N entries (0 for all)",
	}

	updateCmd = &cli.Command{
		Name:            "update",
		HideHelpCommand: true,
		Usage:           "Merge a scoring results file into the leaderboard",
		Flags: []cli.Flag{
			resultsFlag,
			leaderboardFlag,
			strictFlag,
		},
		Action: cmdUpdate,
	}

	leaderboardCmd = &cli.Command{
		Name:            "leaderboard",
		Aliases:         []string{"lb"},
		HideHelpCommand: true,
		Usage:           "Print the current leaderboard",
		Flags: []cli.Flag{
			leaderboardFlag,
			strictFlag,
			topFlag,
		},
		Action: cmdLeaderboard,
	}
)

func leaderboardStore(c *cli.Context) *leaderboard.Store {
	cfg := getConfig(c).Config
	return leaderboard.NewStore(
		stringOr(c, leaderboardFlag.Name, cfg.Output.Leaderboard),
		leaderboard.WithStrict(c.Bool(strictFlag.Name) || cfg.Output.Strict),
	)
}

func cmdUpdate(c *cli.Context) error {
	cfg := getConfig(c).Config
	resultsPath := stringOr(c, resultsFlag.Name, cfg.Output.Results)

	records, err := score.ReadResults(resultsPath)
	if err != nil {
		return fmt.Errorf("run the score command first: %w", err)
	}

	store := leaderboardStore(c)
	snap, sum, err := store.Apply(records)
	if err != nil {
		return fmt.Errorf("updating leaderboard: %w", err)
	}

	slog.Info("leaderboard updated",
		"path", store.Path(),
		"added", sum.Added,
		"updated", sum.Updated,
		"entries", len(snap.Submissions))
	return nil
}

func cmdLeaderboard(c *cli.Context) error {
	snap, err := leaderboardStore(c).Load()
	if err != nil {
		return err
	}
	if n := c.Int(topFlag.Name); n > 0 && n < len(snap.Submissions) {
		snap.Submissions = snap.Submissions[:n]
	}
	return output(c, snap)
}
