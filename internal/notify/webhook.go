package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// SignatureHeader carries hex(HMAC-SHA256(body, secret)).
const SignatureHeader = "X-Signature"

// WebhookPayload is the JSON body posted to webhook channels.
type WebhookPayload struct {
	Event     EventType    `json:"event"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Severity  string       `json:"severity"`
	Timestamp time.Time    `json:"timestamp"`
	Monitor   *MonitorInfo `json:"monitor,omitempty"`
	Incident  *Incident    `json:"incident,omitempty"`
}

// WebhookSender posts JSON payloads, optionally signed.
type WebhookSender struct {
	clients *clientPool
}

// NewWebhookSender creates a webhook sender. httpClient may be nil.
func NewWebhookSender(registry *resilience.Registry, httpClient *http.Client) *WebhookSender {
	return &WebhookSender{clients: newClientPool("webhook", registry, httpClient)}
}

// Type implements Sender.
func (s *WebhookSender) Type() ChannelType { return ChannelWebhook }

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, ch *Channel, ev Event) error {
	if ch.Config.URL == "" {
		return resilience.Permanent(ErrMissingURL)
	}
	if ch.Config.Sign && ch.Config.Secret == "" {
		return resilience.Permanent(ErrMissingSigningSecret)
	}

	body, err := json.Marshal(WebhookPayload{
		Event:     ev.Type,
		Title:     ev.Title,
		Message:   ev.Message,
		Severity:  ev.Severity(),
		Timestamp: ev.OccurredAt.UTC(),
		Monitor:   ev.Monitor,
		Incident:  ev.Incident,
	})
	if err != nil {
		return resilience.Permanent(fmt.Errorf("encode webhook payload: %w", err))
	}

	header := http.Header{}
	for k, v := range ch.Config.Headers {
		header.Set(k, v)
	}
	header.Set("X-Pulsewatch-Event", string(ev.Type))
	if ch.Config.Sign {
		header.Set(SignatureHeader, Sign(body, ch.Config.Secret))
	}

	return s.clients.post(ctx, ch, body, header)
}

// Sign returns the hex encoded HMAC-SHA256 of body keyed with secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
