// Package alert decides when a monitor's recent checks amount to a state
// transition worth alerting on.
package alert

import (
	"fmt"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Transition is a detected change of monitor state.
type Transition struct {
	Type monitor.AlertType
	// Status is the monitor status the transition moves to.
	Status monitor.Status
	// Checks is the number of consecutive checks that triggered it.
	Checks int
}

// Evaluate inspects the most recent checks (most recent first) and returns
// at most one transition. DOWN is considered before DEGRADED before RECOVERY.
// A transition whose target already equals current is never returned, so a
// state change alerts once rather than once per qualifying window.
func Evaluate(current monitor.Status, alertAfter, recoveryAfter int, recent []*monitor.CheckResult) *Transition {
	alertAfter = atLeastOne(alertAfter)
	recoveryAfter = atLeastOne(recoveryAfter)

	if current != monitor.StatusDown && allMatch(recent, alertAfter, monitor.StatusDown) {
		return &Transition{Type: monitor.AlertDown, Status: monitor.StatusDown, Checks: alertAfter}
	}

	if current != monitor.StatusDegraded && allMatch(recent, alertAfter, monitor.StatusDegraded) {
		return &Transition{Type: monitor.AlertDegraded, Status: monitor.StatusDegraded, Checks: alertAfter}
	}

	if (current == monitor.StatusDown || current == monitor.StatusDegraded) &&
		allMatch(recent, recoveryAfter, monitor.StatusUp) {
		return &Transition{Type: monitor.AlertRecovery, Status: monitor.StatusUp, Checks: recoveryAfter}
	}

	return nil
}

// ForMonitor adjusts the transition for the monitor's protocol: a DEGRADED
// SSL monitor is reported as an approaching certificate expiry.
func (t *Transition) ForMonitor(m *monitor.Monitor) *Transition {
	if t == nil {
		return nil
	}
	if t.Type == monitor.AlertDegraded && m.Type == monitor.TypeSSL {
		cpy := *t
		cpy.Type = monitor.AlertSSLExpiry
		return &cpy
	}
	return t
}

// Message renders a human readable description of the transition.
func (t *Transition) Message(m *monitor.Monitor, lastError string) string {
	var msg string
	switch t.Type {
	case monitor.AlertDown:
		msg = fmt.Sprintf("%s is DOWN after %d consecutive failed checks", m.Name, t.Checks)
	case monitor.AlertDegraded:
		msg = fmt.Sprintf("%s is DEGRADED after %d consecutive checks", m.Name, t.Checks)
	case monitor.AlertSSLExpiry:
		msg = fmt.Sprintf("%s has a certificate close to expiry", m.Name)
	case monitor.AlertRecovery:
		return fmt.Sprintf("%s has RECOVERED after %d consecutive successful checks", m.Name, t.Checks)
	default:
		msg = fmt.Sprintf("%s changed state to %s", m.Name, t.Status)
	}
	if lastError != "" {
		msg += ": " + lastError
	}
	return msg
}

func allMatch(recent []*monitor.CheckResult, n int, status monitor.Status) bool {
	if len(recent) < n {
		return false
	}
	for _, c := range recent[:n] {
		if c.Status != status {
			return false
		}
	}
	return true
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
