package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// DefaultDegradedAfter is the response time above which an HTTP check is DEGRADED.
const DefaultDegradedAfter = 5 * time.Second

// maxBodyBytes bounds how much of a response body is searched for a keyword.
const maxBodyBytes = 1 << 20

// HTTPChecker issues an HTTP request and validates status and body.
type HTTPChecker struct {
	client        *http.Client
	degradedAfter time.Duration
}

// NewHTTPChecker creates an HTTP checker. A nil client gets a dedicated
// transport; timeouts always come from the per-check context.
func NewHTTPChecker(client *http.Client, degradedAfter time.Duration) *HTTPChecker {
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = 4
		client = &http.Client{Transport: transport}
	}
	if degradedAfter <= 0 {
		degradedAfter = DefaultDegradedAfter
	}
	return &HTTPChecker{client: client, degradedAfter: degradedAfter}
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, m *monitor.Monitor) Result {
	ctx, cancel, timeout := withDeadline(ctx, m)
	defer cancel()

	cfg := m.Config
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return down(0, fmt.Sprintf("Invalid request: %v", err))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "pulsewatch/1.0")
	}

	trace := newRequestTrace()
	start := time.Now()
	resp, err := trace.do(ctx, c.client, req)
	if err != nil {
		return down(elapsedMs(start), describe(err, timeout))
	}
	defer resp.Body.Close()

	var content []byte
	if cfg.Keyword != "" {
		content, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return down(elapsedMs(start), describe(err, timeout))
		}
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	}
	rt := elapsedMs(start)

	code := resp.StatusCode
	res := Result{ResponseTime: rt, StatusCode: &code, Metadata: trace.metadata()}

	if msg := statusMismatch(cfg.ExpectedStatus, code); msg != "" {
		res.Status = monitor.StatusDown
		res.Error = msg
		return res
	}

	if cfg.Keyword != "" {
		found := strings.Contains(string(content), cfg.Keyword)
		switch {
		case cfg.KeywordType == monitor.KeywordNotContains && found:
			res.Status = monitor.StatusDown
			res.Error = fmt.Sprintf("Keyword %q found", cfg.Keyword)
			return res
		case cfg.KeywordType != monitor.KeywordNotContains && !found:
			res.Status = monitor.StatusDown
			res.Error = fmt.Sprintf("Keyword %q not found", cfg.Keyword)
			return res
		}
	}

	if time.Duration(rt)*time.Millisecond > c.degradedAfter {
		res.Status = monitor.StatusDegraded
		res.Error = fmt.Sprintf("Slow response: %dms", rt)
		return res
	}

	res.Status = monitor.StatusUp
	return res
}

// statusMismatch returns an error text when code is not acceptable. With no
// expected status configured any 2xx is accepted.
func statusMismatch(expected, code int) string {
	if expected != 0 {
		if code != expected {
			return fmt.Sprintf("Expected status %d, got %d", expected, code)
		}
		return ""
	}
	if code < 200 || code > 299 {
		return fmt.Sprintf("Unexpected status code %d", code)
	}
	return ""
}
