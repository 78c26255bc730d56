package checker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Resolver is the subset of *net.Resolver used by the DNS checker.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// DNSChecker resolves a host and optionally matches expected records.
type DNSChecker struct {
	resolver Resolver
}

// NewDNSChecker creates a DNS checker.
func NewDNSChecker(resolver Resolver) *DNSChecker {
	return &DNSChecker{resolver: resolver}
}

// Check implements Checker.
func (c *DNSChecker) Check(ctx context.Context, m *monitor.Monitor) Result {
	ctx, cancel, timeout := withDeadline(ctx, m)
	defer cancel()

	host := m.Config.Hostname()
	start := time.Now()

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		return down(elapsedMs(start), describe(err, timeout))
	}
	if len(addrs) == 0 {
		return down(elapsedMs(start), fmt.Sprintf("No records found for %s", host))
	}

	meta := map[string]any{"addresses": addrs}

	if want := m.Config.ExpectedIP; want != "" && !slices.Contains(addrs, want) {
		res := down(elapsedMs(start), fmt.Sprintf("Expected IP %s not found in %s", want, strings.Join(addrs, ", ")))
		res.Metadata = meta
		return res
	}

	if want := m.Config.ExpectedCNAME; want != "" {
		cname, err := c.resolver.LookupCNAME(ctx, host)
		if err != nil {
			res := down(elapsedMs(start), describe(err, timeout))
			res.Metadata = meta
			return res
		}
		meta["cname"] = cname
		if normalizeName(cname) != normalizeName(want) {
			res := down(elapsedMs(start), fmt.Sprintf("Expected CNAME %s, got %s", want, cname))
			res.Metadata = meta
			return res
		}
	}

	res := up(elapsedMs(start))
	res.Metadata = meta
	return res
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
