package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}

	resetCmd = &cli.Command{
		Name:            "reset",
		Usage:           "Delete all recorded scoring runs",
		HideHelpCommand: true,
		Flags:           []cli.Flag{yesFlag},
		Action:          cmdReset,
	}
)

func cmdReset(c *cli.Context) error {
	dsn := getConfig(c).historyDSN()

	if !c.Bool(yesFlag.Name) {
		fmt.Fprintf(c.App.Writer, "This will permanently delete all scoring history in %s\n", dsn)
		fmt.Fprint(c.App.Writer, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Reset(c.Context)
	if err != nil {
		return err
	}

	slog.Info("history deleted", "records", n)
	fmt.Fprintln(c.App.Writer, "Reset complete.")
	return nil
}
