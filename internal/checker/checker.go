// Package checker executes one protocol probe against a monitor's target.
//
// Checkers never return errors: every network failure, timeout or mismatch
// becomes a DOWN or DEGRADED Result with a descriptive Error.
package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Result is the outcome of a single check.
type Result struct {
	Status       monitor.Status
	ResponseTime int // ms
	StatusCode   *int
	Error        string
	Metadata     map[string]any
}

// Checker probes a monitor's target.
type Checker interface {
	Check(ctx context.Context, m *monitor.Monitor) Result
}

// Func adapts a function to the Checker interface.
type Func func(ctx context.Context, m *monitor.Monitor) Result

// Check calls f(ctx, m).
func (f Func) Check(ctx context.Context, m *monitor.Monitor) Result {
	return f(ctx, m)
}

// Config configures the default checkers.
type Config struct {
	// HTTPClient is used by the HTTP checker. Redirects are followed.
	HTTPClient *http.Client

	// Resolver is used by the DNS checker. Defaults to net.DefaultResolver.
	Resolver Resolver

	// DegradedAfter marks slow HTTP responses DEGRADED. Defaults to 5s.
	DegradedAfter time.Duration

	// Now is the clock used by the SSL and HEARTBEAT checkers.
	Now func() time.Time

	// PingDialer opens the PING probe connections. Defaults to a zero
	// net.Dialer.
	PingDialer *net.Dialer
}

// Registry maps monitor types to checkers.
type Registry struct {
	checkers map[monitor.Type]Checker
}

// NewRegistry creates a registry with a checker for every monitor type.
func NewRegistry(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}

	r := &Registry{checkers: make(map[monitor.Type]Checker)}
	r.Register(monitor.TypeHTTP, NewHTTPChecker(cfg.HTTPClient, cfg.DegradedAfter))
	r.Register(monitor.TypeTCP, NewTCPChecker())
	r.Register(monitor.TypePing, NewPingChecker(cfg.PingDialer))
	r.Register(monitor.TypeSSL, NewSSLChecker(cfg.Now))
	r.Register(monitor.TypeDNS, NewDNSChecker(cfg.Resolver))
	r.Register(monitor.TypeHeartbeat, NewHeartbeatChecker(cfg.Now))
	return r
}

// Register sets the checker for a monitor type, replacing any existing one.
func (r *Registry) Register(t monitor.Type, c Checker) {
	r.checkers[t] = c
}

// Check runs the checker registered for the monitor's type. A panicking
// checker and an unknown type both produce a DOWN result.
func (r *Registry) Check(ctx context.Context, m *monitor.Monitor) (res Result) {
	c, ok := r.checkers[m.Type]
	if !ok {
		return down(0, fmt.Sprintf("Unsupported monitor type %q", m.Type))
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = down(0, fmt.Sprintf("checker panic: %v", rec))
		}
	}()

	return c.Check(ctx, m)
}

// withDeadline bounds ctx by the monitor timeout and returns the effective
// budget, which is shorter when the parent deadline is closer.
func withDeadline(ctx context.Context, m *monitor.Monitor) (context.Context, context.CancelFunc, time.Duration) {
	timeout := m.TimeoutDuration()
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = max(remaining, 0)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, timeout
}

// describe turns a network error into the error text stored on a result.
func describe(err error, timeout time.Duration) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutText(timeout)
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return timeoutText(timeout)
		}
		return fmt.Sprintf("DNS lookup failed for %s: %s", dnsErr.Name, dnsErr.Err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return timeoutText(timeout)
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "Connection reset"
	case errors.Is(err, context.Canceled):
		return "Check cancelled"
	default:
		return err.Error()
	}
}

func timeoutText(timeout time.Duration) string {
	return fmt.Sprintf("Timeout after %dms", timeout.Milliseconds())
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}

func up(rt int) Result {
	return Result{Status: monitor.StatusUp, ResponseTime: rt}
}

func down(rt int, msg string) Result {
	return Result{Status: monitor.StatusDown, ResponseTime: rt, Error: msg}
}
