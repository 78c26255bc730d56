package checker_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

type fakeResolver struct {
	hosts map[string][]string
	cname map[string]string
	block bool
}

func (f *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	addrs, ok := f.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	return f.cname[host], nil
}

func TestDNSChecker(t *testing.T) {
	r := &fakeResolver{
		hosts: map[string][]string{"status.example.com": {"192.0.2.10", "192.0.2.11"}},
		cname: map[string]string{"status.example.com": "edge.cdn.example.net."},
	}
	c := checker.NewDNSChecker(r)

	tests := []struct {
		name       string
		cfg        monitor.Config
		wantStatus monitor.Status
		wantError  string
	}{
		{"resolves", monitor.Config{Host: "status.example.com"}, monitor.StatusUp, ""},
		{"expected ip", monitor.Config{Host: "status.example.com", ExpectedIP: "192.0.2.11"}, monitor.StatusUp, ""},
		{"unexpected ip", monitor.Config{Host: "status.example.com", ExpectedIP: "198.51.100.1"}, monitor.StatusDown, "Expected IP 198.51.100.1 not found"},
		{"expected cname", monitor.Config{Host: "status.example.com", ExpectedCNAME: "EDGE.cdn.example.net"}, monitor.StatusUp, ""},
		{"unexpected cname", monitor.Config{Host: "status.example.com", ExpectedCNAME: "other.example.net"}, monitor.StatusDown, "Expected CNAME other.example.net"},
		{"unknown host", monitor.Config{Host: "missing.example.com"}, monitor.StatusDown, "DNS lookup failed for missing.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Check(context.Background(), &monitor.Monitor{Type: monitor.TypeDNS, Timeout: 5, Config: tt.cfg})
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantError == "" {
				assert.Empty(t, res.Error)
				assert.Equal(t, []string{"192.0.2.10", "192.0.2.11"}, res.Metadata["addresses"])
			} else {
				assert.Contains(t, res.Error, tt.wantError)
			}
		})
	}
}

func TestDNSChecker_Timeout(t *testing.T) {
	c := checker.NewDNSChecker(&fakeResolver{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := c.Check(ctx, &monitor.Monitor{Type: monitor.TypeDNS, Timeout: 5, Config: monitor.Config{Host: "slow.example.com"}})
	assert.Equal(t, monitor.StatusDown, res.Status)
	assert.Contains(t, res.Error, "Timeout")
}
