package net

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client := GetHTTPClient(5 * time.Second)
	require.NotNil(t, client)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestGetHTTPClient_SetsUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := GetHTTPClient(time.Second).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, clientAgent, agent)
}

func TestGetOAuthClient(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := GetOAuthClient(context.Background(), "test-token", time.Second)
	require.NotNil(t, client)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "token test-token", auth)
}

func TestGetOAuthClient_NoToken(t *testing.T) {
	client := GetOAuthClient(context.Background(), "", time.Second)
	require.NotNil(t, client)
	assert.Equal(t, time.Second, client.Timeout)
}

func TestLogResponse_Nil(t *testing.T) {
	LogResponse(nil)
}

func TestLogResponse_Debug(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	req := httptest.NewRequest(http.MethodGet, "https://api.github.com/repos/o/r/pulls/1/files", nil)
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"X-Ratelimit-Remaining": []string{"0"}},
		Body:       http.NoBody,
		Request:    req,
	}
	LogResponse(resp)

	out := buf.String()
	assert.Contains(t, out, "status=403")
	assert.Contains(t, out, "rate_remaining=0")
	assert.Contains(t, out, "pulls/1/files")
}
