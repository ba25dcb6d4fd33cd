// Package discovery narrows a scoring run to the submissions touched by a
// change set. Any failure degrades to scoring every known submission.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a change-list lookup.
const DefaultTimeout = 10 * time.Second

// ErrDiscoveryUnavailable wraps every lookup failure.
var ErrDiscoveryUnavailable = errors.New("change-list discovery unavailable")

// Lister returns the names of submissions changed in the current change set.
// A nil or empty result means no narrowing is possible.
type Lister interface {
	ChangedSubmissions(ctx context.Context) ([]string, error)
}

// None is the Lister used when no change set is known: it never narrows.
type None struct{}

// ChangedSubmissions always returns nothing.
func (None) ChangedSubmissions(_ context.Context) ([]string, error) {
	return nil, nil
}

// Static returns a fixed change list. Useful for local runs and tests.
type Static []string

// ChangedSubmissions returns the list itself.
func (s Static) ChangedSubmissions(_ context.Context) ([]string, error) {
	return s, nil
}

// Scope returns the subset of all named by the lister, in the order of all.
// When the lister fails, times out or names no submission, all is returned
// unchanged. The second value reports whether narrowing happened.
func Scope(ctx context.Context, l Lister, all []string, timeout time.Duration) ([]string, bool) {
	if l == nil || len(all) == 0 {
		return all, false
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	changed, err := l.ChangedSubmissions(ctx)
	if err != nil {
		slog.Warn("could not fetch change list, scoring all submissions", "error", err)
		return all, false
	}
	if len(changed) == 0 {
		slog.Info("change list names no submissions, scoring all submissions")
		return all, false
	}

	set := make(map[string]struct{}, len(changed))
	for _, c := range changed {
		set[c] = struct{}{}
	}

	list := make([]string, 0, len(changed))
	for _, a := range all {
		if _, ok := set[a]; ok {
			list = append(list, a)
		}
	}

	if len(list) == 0 {
		slog.Info("changed submissions not found locally, nothing to score", "changed", changed)
	}

	slog.Debug("narrowed scoring scope", "changed", list, "total", len(all))
	return list, true
}
