package checker

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Ping defaults.
const (
	DefaultPingCount = 3
	DefaultPingPort  = 80
)

// PingChecker measures reachability with a series of TCP connect probes.
// Raw ICMP needs elevated privileges, so each probe is a handshake to Port.
type PingChecker struct {
	dialer *net.Dialer
}

// NewPingChecker creates a ping checker. dialer may be nil.
func NewPingChecker(dialer *net.Dialer) *PingChecker {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &PingChecker{dialer: dialer}
}

// Check implements Checker. The result is DOWN only if every probe fails.
func (c *PingChecker) Check(ctx context.Context, m *monitor.Monitor) Result {
	ctx, cancel, timeout := withDeadline(ctx, m)
	defer cancel()

	count := m.Config.PingCount
	if count <= 0 {
		count = DefaultPingCount
	}
	addr := m.Config.Address(DefaultPingPort)

	var (
		rtts    []int
		lastErr error
	)
	for i := 0; i < count; i++ {
		start := time.Now()
		conn, err := c.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		rtts = append(rtts, elapsedMs(start))
		_ = conn.Close()
	}

	meta := map[string]any{
		"sent":       count,
		"received":   len(rtts),
		"packetLoss": math.Round(float64(count-len(rtts)) / float64(count) * 100),
		"roundTrips": rtts,
	}

	if len(rtts) == 0 {
		res := down(0, fmt.Sprintf("All %d ping attempts failed: %s", count, describe(lastErr, timeout)))
		res.Metadata = meta
		return res
	}

	sum := 0
	for _, rtt := range rtts {
		sum += rtt
	}
	res := up(int(math.Round(float64(sum) / float64(len(rtts)))))
	res.Metadata = meta
	return res
}
