package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker exposes the state of a guarded destination.
type Breaker interface {
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// DeliveryHealth is the health of one notification destination.
type DeliveryHealth struct {
	// Name is the destination identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the time of the last successful delivery.
	LastSuccessAt *time.Time

	// LastFailureAt is the time of the last failed delivery.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the destination's circuit is closed.
func (h *DeliveryHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the circuit is half-open.
func (h *DeliveryHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the circuit is open.
func (h *DeliveryHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded destinations and their delivery outcomes.
type Registry struct {
	mu           sync.RWMutex
	destinations map[string]*destination
}

type destination struct {
	breaker       Breaker
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		destinations: make(map[string]*destination),
	}
}

// Register adds or replaces a destination.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[name] = &destination{breaker: b}
}

// Unregister removes a destination.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.destinations, name)
}

// RecordSuccess records a successful delivery.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.destinations[name]; ok {
		now := time.Now()
		d.lastSuccessAt = &now
	}
}

// RecordFailure records a failed delivery.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.destinations[name]; ok {
		now := time.Now()
		d.lastFailureAt = &now
		if err != nil {
			d.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of one destination, or nil if unknown.
func (r *Registry) GetHealth(name string) *DeliveryHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.destinations[name]
	if !ok {
		return nil
	}
	return d.health(name)
}

// GetAllHealth returns the health of all destinations sorted by name.
func (r *Registry) GetAllHealth() []*DeliveryHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*DeliveryHealth, 0, len(r.destinations))
	for name, d := range r.destinations {
		health = append(health, d.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Count returns the number of registered destinations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.destinations)
}

func (d *destination) health(name string) *DeliveryHealth {
	return &DeliveryHealth{
		Name:          name,
		CircuitState:  d.breaker.CircuitBreakerState(),
		Counts:        d.breaker.CircuitBreakerCounts(),
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}
}
