package notify

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// Sender delivers an event to one channel. A single call is one attempt;
// retries are the dispatcher's concern. Errors wrapped with
// resilience.Permanent are not retried.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, ch *Channel, ev Event) error
}

// clientPool hands out one guarded HTTP client per channel so a failing
// destination trips only its own circuit breaker.
type clientPool struct {
	mu         sync.Mutex
	prefix     string
	clients    map[string]*resilience.Client
	registry   *resilience.Registry
	httpClient *http.Client
	timeout    time.Duration
}

func newClientPool(prefix string, registry *resilience.Registry, httpClient *http.Client) *clientPool {
	return &clientPool{
		prefix:     prefix,
		clients:    make(map[string]*resilience.Client),
		registry:   registry,
		httpClient: httpClient,
		timeout:    10 * time.Second,
	}
}

func (p *clientPool) get(channelID string) *resilience.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[channelID]; ok {
		return c
	}

	cfg := resilience.DefaultClientConfig(p.prefix + "/" + channelID)
	cfg.Timeout = p.timeout
	cfg.Registry = p.registry
	cfg.HTTPClient = p.httpClient

	c := resilience.NewClient(cfg)
	p.clients[channelID] = c
	return c
}

// post sends body as JSON through the channel's guarded client.
func (p *clientPool) post(ctx context.Context, ch *Channel, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.Config.URL, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pulsewatch-notifier/1.0")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.get(ch.ID).Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
