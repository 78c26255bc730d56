package checker_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

func TestSSLChecker(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	notAfter := srv.Certificate().NotAfter
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	m := &monitor.Monitor{
		Type:    monitor.TypeSSL,
		Timeout: 5,
		Config:  monitor.Config{Host: "127.0.0.1", Port: port, ExpiryThresholdDays: 30},
	}

	tests := []struct {
		name       string
		now        time.Time
		wantStatus monitor.Status
		wantError  string
		wantDays   int
	}{
		{"expires in 40 days", notAfter.Add(-40*24*time.Hour - time.Hour), monitor.StatusUp, "", 40},
		{"expires in 20 days", notAfter.Add(-20*24*time.Hour - time.Hour), monitor.StatusDegraded, "Certificate expires in 20 days", 20},
		{"already expired", notAfter.Add(time.Hour), monitor.StatusDown, "Certificate expired", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			c := checker.NewSSLChecker(func() time.Time { return now })

			res := c.Check(context.Background(), m)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantError, res.Error)

			require.NotNil(t, res.Metadata)
			assert.Equal(t, tt.wantDays, res.Metadata["daysUntilExpiry"])
			assert.NotEmpty(t, res.Metadata["subject"])
			assert.NotEmpty(t, res.Metadata["issuer"])
			assert.NotEmpty(t, res.Metadata["validTo"])
		})
	}
}

func TestSSLChecker_DefaultThreshold(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	now := srv.Certificate().NotAfter.Add(-25 * 24 * time.Hour)
	port := srv.Listener.Addr().(*net.TCPAddr).Port
	m := &monitor.Monitor{Type: monitor.TypeSSL, Timeout: 5, Config: monitor.Config{Host: "127.0.0.1", Port: port}}

	res := checker.NewSSLChecker(func() time.Time { return now }).Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDegraded, res.Status)
}

func TestSSLChecker_HandshakeTimeout(t *testing.T) {
	// Accepts TCP connections but never speaks TLS.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var mu sync.Mutex
	var held []net.Conn
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	port := ln.Addr().(*net.TCPAddr).Port
	m := &monitor.Monitor{Type: monitor.TypeSSL, Timeout: 5, Config: monitor.Config{Host: "127.0.0.1", Port: port}}

	res := checker.NewSSLChecker(nil).Check(ctx, m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "Timeout")
}

func TestSSLChecker_ConnectionFailure(t *testing.T) {
	host, port := closedAddr(t)
	m := &monitor.Monitor{Type: monitor.TypeSSL, Timeout: 2, Config: monitor.Config{Host: host, Port: port}}

	res := checker.NewSSLChecker(nil).Check(context.Background(), m)
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Equal(t, "Connection refused", res.Error)
	assert.Nil(t, res.Metadata)
}
