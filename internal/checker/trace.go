package checker

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

// requestTrace records connection phase timings of one HTTP request.
// Dual-stack dials race several connects; only the first to succeed counts.
type requestTrace struct {
	mu                sync.Mutex
	start             time.Time
	dnsStart          time.Time
	connStarts        map[string]time.Time
	connected         bool
	tlsHandshakeStart time.Time

	DNSDur          time.Duration
	ConnDur         time.Duration
	TLSHandshakeDur time.Duration
	TTFB            time.Duration
	Reused          bool

	trace *httptrace.ClientTrace
}

func newRequestTrace() *requestTrace {
	r := &requestTrace{connStarts: make(map[string]time.Time)}
	r.trace = &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { r.locked(func() { r.dnsStart = time.Now() }) },
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.locked(func() { r.DNSDur = time.Since(r.dnsStart) })
		},
		ConnectStart: func(network, addr string) {
			r.locked(func() { r.connStarts[network+" "+addr] = time.Now() })
		},
		ConnectDone: func(network, addr string, err error) {
			r.locked(func() {
				started, ok := r.connStarts[network+" "+addr]
				if err != nil || !ok || r.connected {
					return
				}
				r.connected = true
				r.ConnDur = time.Since(started)
			})
		},
		TLSHandshakeStart: func() { r.locked(func() { r.tlsHandshakeStart = time.Now() }) },
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			r.locked(func() { r.TLSHandshakeDur = time.Since(r.tlsHandshakeStart) })
		},
		GotConn: func(c httptrace.GotConnInfo) { r.locked(func() { r.Reused = c.Reused }) },
		GotFirstResponseByte: func() {
			r.locked(func() { r.TTFB = time.Since(r.start) })
		},
	}
	return r
}

func (r *requestTrace) locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// do performs req with tracing enabled.
func (r *requestTrace) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	r.locked(func() { r.start = time.Now() })
	return client.Do(req.WithContext(httptrace.WithClientTrace(ctx, r.trace)))
}

func (r *requestTrace) metadata() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"dnsMs":      r.DNSDur.Milliseconds(),
		"connectMs":  r.ConnDur.Milliseconds(),
		"tlsMs":      r.TLSHandshakeDur.Milliseconds(),
		"ttfbMs":     r.TTFB.Milliseconds(),
		"connReused": r.Reused,
	}
}
