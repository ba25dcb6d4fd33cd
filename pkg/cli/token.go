package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "qscore"
	keyringUser    = "github_token"

	envToken = "GITHUB_TOKEN"
)

func saveGitHubToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token required")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("saving token to keychain: %w", err)
	}
	return nil
}

func deleteGitHubToken() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting token from keychain: %w", err)
	}
	return nil
}

// resolveGitHubToken returns the explicit token, then GITHUB_TOKEN, then the
// keychain entry. An empty result means anonymous access.
func resolveGitHubToken(explicit string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if t := strings.TrimSpace(os.Getenv(envToken)); t != "" {
		return t
	}

	t, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("keychain unavailable", "error", err)
		}
		return ""
	}
	return t
}
