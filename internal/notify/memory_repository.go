package notify

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process demos.
type InMemoryRepository struct {
	mu          sync.RWMutex
	channels    map[string]*Channel
	subscribers map[string]*Subscriber
}

// NewInMemoryRepository creates a new in-memory notification repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		channels:    make(map[string]*Channel),
		subscribers: make(map[string]*Subscriber),
	}
}

// ListEnabledChannels returns the tenant's enabled channels ordered by creation.
func (r *InMemoryRepository) ListEnabledChannels(_ context.Context, tenantID string) ([]*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Channel
	for _, ch := range r.channels {
		if ch.TenantID == tenantID && ch.Enabled {
			cpy := *ch
			out = append(out, &cpy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListConfirmedSubscribers returns the tenant's confirmed subscribers.
func (r *InMemoryRepository) ListConfirmedSubscribers(_ context.Context, tenantID string) ([]*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscriber
	for _, s := range r.subscribers {
		if s.TenantID == tenantID && s.Confirmed {
			cpy := *s
			out = append(out, &cpy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// GetChannel retrieves a channel by ID.
func (r *InMemoryRepository) GetChannel(_ context.Context, id string) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	cpy := *ch
	return &cpy, nil
}

// CreateChannel stores a new channel.
func (r *InMemoryRepository) CreateChannel(_ context.Context, ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *ch
	r.channels[ch.ID] = &cpy
	return nil
}

// CreateSubscriber stores a new subscriber.
func (r *InMemoryRepository) CreateSubscriber(_ context.Context, sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *sub
	r.subscribers[sub.ID] = &cpy
	return nil
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
