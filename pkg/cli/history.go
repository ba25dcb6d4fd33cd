package cli

import (
	"errors"

	"github.com/mchmarny/qscore/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	submissionFlag = &cli.StringFlag{
		Name:  "submission",
		Usage: "Submission name",
	}

	runFlag = &cli.StringFlag{
		Name:  "run",
		Usage: "Run (batch) id",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of runs to list",
		Value: data.DefaultHistoryLimit,
	}

	historyCmd = &cli.Command{
		Name:            "history",
		HideHelpCommand: true,
		Usage:           "List past scoring runs of a submission, or all records of one run",
		Flags: []cli.Flag{
			submissionFlag,
			runFlag,
			limitFlag,
		},
		Action: cmdHistory,
		Subcommands: []*cli.Command{
			{
				Name:   "state",
				Usage:  "Summarize the history database",
				Action: cmdHistoryState,
			},
		},
	}
)

func openHistory(c *cli.Context) (*data.Store, error) {
	return data.Open(c.Context, getConfig(c).historyDSN())
}

func cmdHistory(c *cli.Context) error {
	name, run := c.String(submissionFlag.Name), c.String(runFlag.Name)
	if name == "" && run == "" {
		return errors.New("either --submission or --run is required")
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	var list []*data.Run
	if run != "" {
		list, err = store.GetRun(c.Context, run)
	} else {
		list, err = store.GetHistory(c.Context, name, c.Int(limitFlag.Name))
	}
	if err != nil {
		return err
	}
	return output(c, list)
}

func cmdHistoryState(c *cli.Context) error {
	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.GetState(c.Context)
	if err != nil {
		return err
	}
	return output(c, st)
}
