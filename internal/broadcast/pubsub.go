package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// ErrInvalidEnvelope is returned for relayed messages that cannot be
// delivered.
var ErrInvalidEnvelope = errors.New("invalid broadcast envelope")

// envelope is the Pub/Sub message body of a relayed event. An empty
// Audience means every audience.
type envelope struct {
	TenantID string          `json:"tenantId"`
	Audience Audience        `json:"audience,omitempty"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// Encode builds the relay message for ev. An empty audience addresses every
// audience of the tenant.
func Encode(tenantID string, audience Audience, ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return json.Marshal(envelope{
		TenantID: tenantID,
		Audience: audience,
		Type:     ev.Type,
		Data:     data,
	})
}

// Deliver decodes a relay message and hands it to target.
func Deliver(target Broadcaster, msg []byte) error {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.TenantID == "" || env.Type == "" {
		return fmt.Errorf("%w: missing tenant or type", ErrInvalidEnvelope)
	}

	ev := Event{Type: env.Type, Data: env.Data}
	switch env.Audience {
	case "":
		target.BroadcastAll(env.TenantID, ev)
	case AudienceDashboard, AudiencePublic:
		target.Broadcast(env.TenantID, env.Audience, ev)
	default:
		return fmt.Errorf("%w: unknown audience %q", ErrInvalidEnvelope, env.Audience)
	}
	return nil
}

// PubSubConfig holds Pub/Sub relay settings.
type PubSubConfig struct {
	ProjectID    string
	Topic        string
	Subscription string
	Logger       zerolog.Logger
}

// Publisher forwards broadcasts to a Pub/Sub topic so that the process
// holding the viewer connections can relay them.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewPublisher creates a Pub/Sub publisher.
func NewPublisher(ctx context.Context, cfg PubSubConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    cfg.Logger.With().Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Broadcast implements Broadcaster.
func (p *Publisher) Broadcast(tenantID string, audience Audience, ev Event) {
	p.publish(tenantID, audience, ev)
}

// BroadcastAll implements Broadcaster.
func (p *Publisher) BroadcastAll(tenantID string, ev Event) {
	p.publish(tenantID, "", ev)
}

func (p *Publisher) publish(tenantID string, audience Audience, ev Event) {
	data, err := Encode(tenantID, audience, ev)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode broadcast")
		return
	}

	ctx := context.Background()
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"tenant_id": tenantID, "event": ev.Type},
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := result.Get(ctx); err != nil {
			p.logger.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish broadcast")
		}
	}()
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	p.wg.Wait()
	return p.client.Close()
}

// Relay receives published broadcasts and hands them to a local manager.
type Relay struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	target           Broadcaster
	logger           zerolog.Logger
}

// NewRelay creates a relay delivering to target.
func NewRelay(ctx context.Context, cfg PubSubConfig, target Broadcaster) (*Relay, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100

	return &Relay{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.Subscription,
		target:           target,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info().
		Str("subscription", r.subscriptionName).
		Msg("starting broadcast relay")

	return r.subscriber.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		// Real-time events are not worth redelivering.
		defer msg.Ack()
		if err := Deliver(r.target, msg.Data); err != nil {
			r.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping relayed broadcast")
		}
	})
}

// Close closes the Pub/Sub client.
func (r *Relay) Close() error {
	return r.client.Close()
}

var _ Broadcaster = (*Publisher)(nil)
