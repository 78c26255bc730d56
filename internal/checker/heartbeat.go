package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// HeartbeatChecker compares the last received heartbeat to the grace period.
// It performs no network I/O.
type HeartbeatChecker struct {
	now func() time.Time
}

// NewHeartbeatChecker creates a heartbeat checker using now as its clock.
func NewHeartbeatChecker(now func() time.Time) *HeartbeatChecker {
	if now == nil {
		now = time.Now
	}
	return &HeartbeatChecker{now: now}
}

// Check implements Checker. The grace period falls back to the monitor
// interval when unset.
func (c *HeartbeatChecker) Check(_ context.Context, m *monitor.Monitor) Result {
	grace := m.Config.GracePeriod
	if grace <= 0 {
		grace = m.Interval
	}

	if m.LastHeartbeatAt == nil {
		return down(0, "No heartbeat received")
	}

	since := c.now().Sub(*m.LastHeartbeatAt)
	elapsed := int(since.Seconds())
	meta := map[string]any{
		"lastHeartbeatAt":       m.LastHeartbeatAt.UTC().Format(time.RFC3339),
		"secondsSinceHeartbeat": elapsed,
		"gracePeriod":           grace,
	}

	if since > time.Duration(grace)*time.Second {
		res := down(0, fmt.Sprintf("No heartbeat for %ds (grace period %ds)", elapsed, grace))
		res.Metadata = meta
		return res
	}

	res := up(0)
	res.Metadata = meta
	return res
}
