package checker

import (
	"context"
	"net"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// TCPChecker opens a raw TCP connection to host:port.
type TCPChecker struct {
	dialer *net.Dialer
}

// NewTCPChecker creates a TCP checker.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{dialer: &net.Dialer{}}
}

// Check implements Checker.
func (c *TCPChecker) Check(ctx context.Context, m *monitor.Monitor) Result {
	ctx, cancel, timeout := withDeadline(ctx, m)
	defer cancel()

	addr := m.Config.Address(0)
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	rt := elapsedMs(start)
	if err != nil {
		return down(rt, describe(err, timeout))
	}
	_ = conn.Close()

	res := up(rt)
	res.Metadata = map[string]any{"address": addr}
	return res
}
