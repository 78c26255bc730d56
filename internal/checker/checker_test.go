package checker_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

func httpMonitor(url string) *monitor.Monitor {
	return &monitor.Monitor{ID: "mon_1", Type: monitor.TypeHTTP, Timeout: 5, Config: monitor.Config{URL: url}}
}

// closedAddr returns an address nothing is listening on.
func closedAddr(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return addr.IP.String(), addr.Port
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = io.WriteString(w, "All systems Operational")
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		case "/created":
			w.WriteHeader(http.StatusCreated)
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			_, _ = fmt.Fprintf(w, "%s %s %s", r.Method, r.Header.Get("X-Token"), body)
		}
	}))
	defer srv.Close()

	c := checker.NewHTTPChecker(nil, 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		mutate     func(*monitor.Monitor)
		wantStatus monitor.Status
		wantError  string
	}{
		{"success", func(m *monitor.Monitor) { m.Config.URL += "/ok" }, monitor.StatusUp, ""},
		{"server error", func(m *monitor.Monitor) { m.Config.URL += "/error" }, monitor.StatusDown, "Unexpected status code 500"},
		{"expected status matches", func(m *monitor.Monitor) {
			m.Config.URL += "/created"
			m.Config.ExpectedStatus = 201
		}, monitor.StatusUp, ""},
		{"expected status mismatch", func(m *monitor.Monitor) {
			m.Config.URL += "/ok"
			m.Config.ExpectedStatus = 204
		}, monitor.StatusDown, "Expected status 204, got 200"},
		{"keyword present", func(m *monitor.Monitor) {
			m.Config.URL += "/ok"
			m.Config.Keyword = "Operational"
			m.Config.KeywordType = monitor.KeywordContains
		}, monitor.StatusUp, ""},
		{"keyword missing", func(m *monitor.Monitor) {
			m.Config.URL += "/created"
			m.Config.ExpectedStatus = 201
			m.Config.Keyword = "Operational"
			m.Config.KeywordType = monitor.KeywordContains
		}, monitor.StatusDown, `Keyword "Operational" not found`},
		{"forbidden keyword present", func(m *monitor.Monitor) {
			m.Config.URL += "/ok"
			m.Config.Keyword = "Operational"
			m.Config.KeywordType = monitor.KeywordNotContains
		}, monitor.StatusDown, `Keyword "Operational" found`},
		{"method headers and body", func(m *monitor.Monitor) {
			m.Config.URL += "/echo"
			m.Config.Method = "post"
			m.Config.Headers = map[string]string{"X-Token": "abc"}
			m.Config.Body = "payload"
			m.Config.Keyword = "POST abc payload"
		}, monitor.StatusUp, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := httpMonitor(srv.URL)
			tt.mutate(m)

			res := c.Check(ctx, m)
			assert.Equal(t, tt.wantStatus, res.Status, res.Error)
			if tt.wantError == "" {
				assert.Empty(t, res.Error)
			} else {
				assert.Contains(t, res.Error, tt.wantError)
			}
			require.NotNil(t, res.StatusCode)
			assert.Contains(t, res.Metadata, "ttfbMs")
		})
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := checker.NewHTTPChecker(nil, 0).Check(ctx, httpMonitor(srv.URL))
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "Timeout")
	assert.Nil(t, res.StatusCode)
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	host, port := closedAddr(t)

	res := checker.NewHTTPChecker(nil, 0).Check(context.Background(), httpMonitor("http://"+net.JoinHostPort(host, strconv.Itoa(port))))
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "Connection refused", res.Error)
}

func TestHTTPChecker_SlowResponseIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	res := checker.NewHTTPChecker(nil, 10*time.Millisecond).Check(context.Background(), httpMonitor(srv.URL))
	assert.Equal(t, monitor.StatusDegraded, res.Status)
	assert.GreaterOrEqual(t, res.ResponseTime, 50)
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := &monitor.Monitor{Type: monitor.TypeTCP, Timeout: 2, Config: monitor.Config{Host: "127.0.0.1", Port: addr.Port}}

	res := checker.NewTCPChecker().Check(context.Background(), m)
	assert.Equal(t, monitor.StatusUp, res.Status)
	assert.Empty(t, res.Error)

	host, port := closedAddr(t)
	m.Config = monitor.Config{Host: host, Port: port}
	res = checker.NewTCPChecker().Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "Connection refused", res.Error)
}

func TestTCPChecker_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	m := &monitor.Monitor{Type: monitor.TypeTCP, Timeout: 2, Config: monitor.Config{Host: "127.0.0.1", Port: 9}}
	res := checker.NewTCPChecker().Check(ctx, m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "Timeout")
}

func TestPingChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	m := &monitor.Monitor{Type: monitor.TypePing, Timeout: 2, Config: monitor.Config{Host: "127.0.0.1", Port: port, PingCount: 2}}

	res := checker.NewPingChecker(nil).Check(context.Background(), m)
	assert.Equal(t, monitor.StatusUp, res.Status)
	assert.Equal(t, 2, res.Metadata["received"])

	host, closed := closedAddr(t)
	m.Config = monitor.Config{Host: host, Port: closed}
	res = checker.NewPingChecker(nil).Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "All 3 ping attempts failed: Connection refused", res.Error)
	assert.Equal(t, 0, res.Metadata["received"])
}

func TestPingChecker_EveryProbeTimesOut(t *testing.T) {
	// Every connect stalls until its context expires.
	stalled := &net.Dialer{
		ControlContext: func(ctx context.Context, _, _ string, _ syscall.RawConn) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	m := &monitor.Monitor{Type: monitor.TypePing, Timeout: 5, Config: monitor.Config{Host: "127.0.0.1", Port: 9, PingCount: 3}}
	res := checker.NewPingChecker(stalled).Check(ctx, m)

	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "All 3 ping attempts failed")
	assert.Contains(t, res.Error, "Timeout")
	assert.Equal(t, 0, res.Metadata["received"])
}

func TestHeartbeatChecker_FractionalSecondsPastGrace(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := checker.NewHeartbeatChecker(func() time.Time { return now })

	last := now.Add(-60900 * time.Millisecond)
	m := &monitor.Monitor{Type: monitor.TypeHeartbeat, Interval: 60, Config: monitor.Config{GracePeriod: 60}, LastHeartbeatAt: &last}

	res := c.Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "No heartbeat for 60s (grace period 60s)", res.Error)

	onTime := now.Add(-60 * time.Second)
	m.LastHeartbeatAt = &onTime
	assert.Equal(t, monitor.StatusUp, c.Check(context.Background(), m).Status)
}

func TestHeartbeatChecker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := checker.NewHeartbeatChecker(func() time.Time { return now })

	m := &monitor.Monitor{Type: monitor.TypeHeartbeat, Interval: 60, Config: monitor.Config{GracePeriod: 300}}

	res := c.Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "No heartbeat received", res.Error)

	recent := now.Add(-2 * time.Minute)
	m.LastHeartbeatAt = &recent
	assert.Equal(t, monitor.StatusUp, c.Check(context.Background(), m).Status)

	stale := now.Add(-10 * time.Minute)
	m.LastHeartbeatAt = &stale
	res = c.Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.True(t, strings.HasPrefix(res.Error, "No heartbeat for 600s"))

	// Without a grace period the interval applies.
	m.Config.GracePeriod = 0
	m.LastHeartbeatAt = &recent
	assert.Equal(t, monitor.StatusDown, c.Check(context.Background(), m).Status)
}

func TestRegistry(t *testing.T) {
	r := checker.NewRegistry(checker.Config{})

	r.Register(monitor.TypeTCP, checker.Func(func(context.Context, *monitor.Monitor) checker.Result {
		panic("boom")
	}))
	res := r.Check(context.Background(), &monitor.Monitor{Type: monitor.TypeTCP})
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "checker panic: boom", res.Error)

	res = r.Check(context.Background(), &monitor.Monitor{Type: "GOPHER"})
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "Unsupported monitor type")

	res = r.Check(context.Background(), &monitor.Monitor{Type: monitor.TypeHeartbeat, Interval: 60})
	assert.Equal(t, "No heartbeat received", res.Error)
}
