package net

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
)

// LogResponse logs the status, URL and headers of a failed response at debug
// level. The body is left out: API clients have usually drained it already.
func LogResponse(resp *http.Response) {
	if resp == nil || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{"status", resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		attrs = append(attrs, "url", resp.Request.URL.String())
	}
	if rl := resp.Header.Get("X-RateLimit-Remaining"); rl != "" {
		attrs = append(attrs, "rate_remaining", rl)
	}
	if dump, err := httputil.DumpResponse(resp, false); err == nil {
		attrs = append(attrs, "headers", string(dump))
	}
	slog.Debug("http response", attrs...)
}
