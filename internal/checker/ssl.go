package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// SSL defaults.
const (
	DefaultSSLPort             = 443
	DefaultExpiryThresholdDays = 30
)

// SSLChecker inspects the leaf certificate presented by a TLS endpoint.
type SSLChecker struct {
	now    func() time.Time
	dialer *net.Dialer
}

// NewSSLChecker creates an SSL checker using now as its clock.
func NewSSLChecker(now func() time.Time) *SSLChecker {
	if now == nil {
		now = time.Now
	}
	return &SSLChecker{now: now, dialer: &net.Dialer{}}
}

// Check implements Checker.
func (c *SSLChecker) Check(ctx context.Context, m *monitor.Monitor) Result {
	ctx, cancel, timeout := withDeadline(ctx, m)
	defer cancel()

	host := m.Config.Hostname()
	addr := m.Config.Address(DefaultSSLPort)

	// Verification is done separately below so expired and untrusted
	// certificates can still be inspected.
	d := &tls.Dialer{
		NetDialer: c.dialer,
		Config:    &tls.Config{ServerName: host, InsecureSkipVerify: true}, //nolint:gosec
	}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	rt := elapsedMs(start)
	if err != nil {
		return down(rt, describe(err, timeout))
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return down(rt, "No certificate presented")
	}

	cert := state.PeerCertificates[0]
	now := c.now()
	days := int(math.Floor(cert.NotAfter.Sub(now).Seconds() / 86400))

	res := Result{ResponseTime: rt, Metadata: certMetadata(cert, state.PeerCertificates[1:], host, days, now)}

	threshold := m.Config.ExpiryThresholdDays
	if threshold <= 0 {
		threshold = DefaultExpiryThresholdDays
	}

	switch {
	case days <= 0:
		res.Status = monitor.StatusDown
		res.Error = "Certificate expired"
	case days < threshold:
		res.Status = monitor.StatusDegraded
		res.Error = fmt.Sprintf("Certificate expires in %d days", days)
	default:
		res.Status = monitor.StatusUp
	}
	return res
}

func certMetadata(cert *x509.Certificate, chain []*x509.Certificate, host string, days int, now time.Time) map[string]any {
	intermediates := x509.NewCertPool()
	for _, c := range chain {
		intermediates.AddCert(c)
	}
	_, verifyErr := cert.Verify(x509.VerifyOptions{
		DNSName:       host,
		Intermediates: intermediates,
		CurrentTime:   now,
	})

	meta := map[string]any{
		"subject":         cert.Subject.String(),
		"issuer":          cert.Issuer.String(),
		"validFrom":       cert.NotBefore.UTC().Format(time.RFC3339),
		"validTo":         cert.NotAfter.UTC().Format(time.RFC3339),
		"daysUntilExpiry": days,
		"serialNumber":    cert.SerialNumber.String(),
		"authorized":      verifyErr == nil,
	}
	if verifyErr != nil {
		meta["authorizationError"] = verifyErr.Error()
	}
	return meta
}
