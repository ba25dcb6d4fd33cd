package net

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns       = 10
	idleTimeoutSeconds = 60
	clientAgent        = "qscore"
)

// GetHTTPClient returns an anonymous client bounded by timeout.
func GetHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(timeout),
	}
}

// GetOAuthClient returns a client that authenticates with a static token.
// An empty token yields an anonymous client.
func GetOAuthClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	base := GetHTTPClient(timeout)
	if token == "" {
		return base
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "token",
			AccessToken: token,
		},
	)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout

	return tc
}

func newTransport(timeout time.Duration) http.RoundTripper {
	return &userAgentTransport{
		next: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          maxIdleConns,
			IdleConnTimeout:       idleTimeoutSeconds * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", clientAgent)
	}
	return t.next.RoundTrip(r)
}
