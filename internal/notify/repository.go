package notify

import "context"

// Repository defines the channel and subscriber reads of the dispatcher, plus
// the writes used by administrative code and tests.
type Repository interface {
	// ListEnabledChannels returns the tenant's enabled channels.
	ListEnabledChannels(ctx context.Context, tenantID string) ([]*Channel, error)

	// ListConfirmedSubscribers returns the tenant's confirmed subscribers.
	ListConfirmedSubscribers(ctx context.Context, tenantID string) ([]*Subscriber, error)

	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, id string) (*Channel, error)

	// CreateChannel stores a new channel.
	CreateChannel(ctx context.Context, ch *Channel) error

	// CreateSubscriber stores a new subscriber.
	CreateSubscriber(ctx context.Context, sub *Subscriber) error
}
