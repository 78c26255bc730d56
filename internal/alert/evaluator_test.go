package alert_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/alert"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// history builds checks most recent first.
func history(statuses ...monitor.Status) []*monitor.CheckResult {
	now := time.Now()
	checks := make([]*monitor.CheckResult, len(statuses))
	for i, s := range statuses {
		checks[i] = &monitor.CheckResult{
			Status:    s,
			CheckedAt: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	return checks
}

const (
	up       = monitor.StatusUp
	down     = monitor.StatusDown
	degraded = monitor.StatusDegraded
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name          string
		current       monitor.Status
		alertAfter    int
		recoveryAfter int
		recent        []*monitor.CheckResult
		want          monitor.AlertType
	}{
		{"down after threshold", up, 3, 1, history(down, down, down), monitor.AlertDown},
		{"down below threshold", up, 3, 1, history(down, down, up), ""},
		{"not enough history", up, 3, 1, history(down, down), ""},
		{"already down", down, 3, 1, history(down, down, down, down), ""},
		{"degraded after threshold", up, 2, 1, history(degraded, degraded), monitor.AlertDegraded},
		{"already degraded", degraded, 2, 1, history(degraded, degraded), ""},
		{"down wins over degraded when down from degraded", degraded, 2, 1, history(down, down), monitor.AlertDown},
		{"recovery from down", down, 3, 2, history(up, up, down), monitor.AlertRecovery},
		{"recovery from degraded", degraded, 1, 1, history(up), monitor.AlertRecovery},
		{"recovery below threshold", down, 1, 2, history(up, down), ""},
		{"up stays up", up, 1, 1, history(up, up), ""},
		{"zero thresholds treated as one", up, 0, 0, history(down), monitor.AlertDown},
		{"empty history", up, 1, 1, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alert.Evaluate(tt.current, tt.alertAfter, tt.recoveryAfter, tt.recent)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestEvaluate_FiresOncePerStateChange(t *testing.T) {
	recent := history(down, down, down)

	first := alert.Evaluate(up, 3, 1, recent)
	require.NotNil(t, first)
	assert.Equal(t, monitor.AlertDown, first.Type)
	assert.Equal(t, monitor.StatusDown, first.Status)

	// A fourth failure with the status now DOWN must not alert again.
	recent = history(down, down, down, down)
	assert.Nil(t, alert.Evaluate(first.Status, 3, 1, recent))

	// Unchanged window, reflected status: still nothing.
	assert.Nil(t, alert.Evaluate(first.Status, 3, 1, recent))
}

func TestTransition_ForMonitor(t *testing.T) {
	tr := &alert.Transition{Type: monitor.AlertDegraded, Status: monitor.StatusDegraded, Checks: 1}

	ssl := &monitor.Monitor{Type: monitor.TypeSSL}
	assert.Equal(t, monitor.AlertSSLExpiry, tr.ForMonitor(ssl).Type)
	assert.Equal(t, monitor.AlertDegraded, tr.Type, "original must not be mutated")

	httpMon := &monitor.Monitor{Type: monitor.TypeHTTP}
	assert.Equal(t, monitor.AlertDegraded, tr.ForMonitor(httpMon).Type)

	var none *alert.Transition
	assert.Nil(t, none.ForMonitor(ssl))
}

func TestTransition_Message(t *testing.T) {
	m := &monitor.Monitor{Name: "API"}

	down := &alert.Transition{Type: monitor.AlertDown, Checks: 3}
	assert.Equal(t, "API is DOWN after 3 consecutive failed checks: Connection refused", down.Message(m, "Connection refused"))

	rec := &alert.Transition{Type: monitor.AlertRecovery, Checks: 2}
	assert.Equal(t, "API has RECOVERED after 2 consecutive successful checks", rec.Message(m, "ignored"))
}
