package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "GitHub token (default: $GITHUB_TOKEN, then OS keychain)",
	}

	clearFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the stored token",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store a GitHub token in the OS keychain for change-list discovery",
		Flags:           []cli.Flag{tokenFlag, clearFlag},
		Action:          cmdAuth,
	}
)

func cmdAuth(c *cli.Context) error {
	if c.Bool(clearFlag.Name) {
		if err := deleteGitHubToken(); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Token removed from OS keychain")
		return nil
	}

	token := c.String(tokenFlag.Name)
	if token == "" {
		fmt.Fprint(c.App.Writer, "GitHub token: ")
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	if err := saveGitHubToken(token); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "Token saved to OS keychain")
	return nil
}
