package sessionmsal

import (
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// loggingTransport routes the library's traffic into the debug log.
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}

	ctx := req.Context()
	start := time.Now()

	resp, err := next.RoundTrip(req)
	if err != nil {
		slogctx.Debug(ctx, "Identity provider request failed",
			"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "error", err)
		return nil, err
	}

	slogctx.Debug(ctx, "Identity provider request",
		"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	return resp, nil
}
