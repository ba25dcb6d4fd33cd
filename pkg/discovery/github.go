package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/qscore/pkg/net"
	"github.com/sony/gobreaker"
)

const (
	// DefaultPrefix is the repository folder holding submissions.
	DefaultPrefix = "submissions"

	filesPerPage      = 100
	maxPages          = 30
	breakerFailures   = 3
	breakerOpenFor    = 60 * time.Second
	breakerInterval   = 60 * time.Second
	repoPartsExpected = 2
)

// GitHubSource reads pull request file lists from one repository. All
// listers created from a source share its circuit breaker, so a long-lived
// source stops calling an unhealthy API across lookups.
type GitHubSource struct {
	client  *github.Client
	owner   string
	repo    string
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// GitHubLister lists the submission folders touched by one pull request.
type GitHubLister struct {
	src    *GitHubSource
	number int
}

// GitHubOption configures a GitHubSource.
type GitHubOption func(*GitHubSource) error

// WithBaseURL points the source at a different API root (GitHub Enterprise, tests).
func WithBaseURL(base string) GitHubOption {
	return func(s *GitHubSource) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("parsing base URL %s: %w", base, err)
		}
		s.client.BaseURL = u
		return nil
	}
}

// WithPrefix sets the folder under which submissions live.
func WithPrefix(prefix string) GitHubOption {
	return func(s *GitHubSource) error {
		s.prefix = strings.Trim(prefix, "/")
		return nil
	}
}

// NewGitHubSource creates a source for repository ("owner/name"). A nil
// client means anonymous access.
func NewGitHubSource(client *http.Client, repository string, opts ...GitHubOption) (*GitHubSource, error) {
	parts := strings.Split(strings.Trim(repository, "/"), "/")
	if len(parts) != repoPartsExpected || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", repository)
	}
	if client == nil {
		client = net.GetHTTPClient(DefaultTimeout)
	}

	s := &GitHubSource{
		client:  github.NewClient(client),
		owner:   parts[0],
		repo:    parts[1],
		prefix:  DefaultPrefix,
		breaker: newBreaker(fmt.Sprintf("github-pr-files-%s-%s", parts[0], parts[1])),
	}

	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Repository returns "owner/name".
func (s *GitHubSource) Repository() string {
	return s.owner + "/" + s.repo
}

// PullRequest returns the lister for pull request number.
func (s *GitHubSource) PullRequest(number int) (*GitHubLister, error) {
	if number <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", number)
	}
	return &GitHubLister{src: s, number: number}, nil
}

// NewGitHubLister creates a single-use source and returns the lister for
// pull request number in repository.
func NewGitHubLister(client *http.Client, repository string, number int, opts ...GitHubOption) (*GitHubLister, error) {
	s, err := NewGitHubSource(client, repository, opts...)
	if err != nil {
		return nil, err
	}
	return s.PullRequest(number)
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: apiHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// apiHealthy reports whether err leaves the API healthy. An unknown pull
// request is a caller error and does not count against the breaker.
func apiHealthy(err error) bool {
	if err == nil {
		return true
	}
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		switch ge.Response.StatusCode {
		case http.StatusNotFound, http.StatusUnprocessableEntity:
			return true
		}
	}
	return false
}

// ChangedSubmissions returns the distinct submission folders touched by the
// pull request, in first-seen order.
func (l *GitHubLister) ChangedSubmissions(ctx context.Context) ([]string, error) {
	v, err := l.src.breaker.Execute(func() (interface{}, error) {
		return l.listFiles(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}

	files, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type %T", ErrDiscoveryUnavailable, v)
	}
	return SubmissionsFromPaths(l.src.prefix, files), nil
}

func (l *GitHubLister) listFiles(ctx context.Context) ([]string, error) {
	opt := &github.ListOptions{PerPage: filesPerPage}
	files := make([]string, 0)

	for page := 0; page < maxPages; page++ {
		list, resp, err := l.src.client.PullRequests.ListFiles(ctx, l.src.owner, l.src.repo, l.number, opt)
		if err != nil {
			if resp != nil {
				net.LogResponse(resp.Response)
			}
			return nil, fmt.Errorf("listing files of %s/%s#%d: %w", l.src.owner, l.src.repo, l.number, err)
		}
		if resp != nil && resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("listing files of %s/%s#%d: unexpected status %d", l.src.owner, l.src.repo, l.number, resp.StatusCode)
		}

		for _, f := range list {
			files = append(files, f.GetFilename())
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	slog.Debug("pull request files", "repo", l.src.Repository(), "number", l.number, "files", len(files))
	return files, nil
}

// SubmissionsFromPaths maps repository paths like "submissions/<name>/..." to
// distinct submission names.
func SubmissionsFromPaths(prefix string, paths []string) []string {
	prefix = strings.Trim(prefix, "/") + "/"
	seen := make(map[string]struct{})
	list := make([]string, 0)

	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		list = append(list, name)
	}
	return list
}
