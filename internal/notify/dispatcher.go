package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// DefaultAttemptTimeout bounds a single delivery attempt.
const DefaultAttemptTimeout = 15 * time.Second

// Mailer sends one event to a list of addresses.
type Mailer interface {
	SendTo(ctx context.Context, to []string, ev Event) error
}

// Config holds dispatcher dependencies.
type Config struct {
	Repository Repository

	// Senders deliver to channels, one per ChannelType.
	Senders []Sender

	// Mailer sends incident events to subscribers. Optional.
	Mailer Mailer

	// Retry is applied to every channel and subscriber independently.
	Retry resilience.RetryPolicy

	// AttemptTimeout bounds each attempt.
	// Default: 15 seconds
	AttemptTimeout time.Duration

	Logger zerolog.Logger
}

// Delivery is the final outcome for one channel or subscriber.
type Delivery struct {
	Target   string
	Channel  ChannelType
	Attempts int
	Err      error
}

// Report lists the deliveries of one dispatch.
type Report struct {
	Deliveries []Delivery
}

// Failed returns the deliveries that did not succeed.
func (r Report) Failed() []Delivery {
	var failed []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

// Dispatcher fans events out to a tenant's channels and, for incidents, its
// confirmed subscribers. Deliveries are isolated from one another and errors
// never propagate to the caller.
type Dispatcher struct {
	repo           Repository
	senders        map[ChannelType]Sender
	mailer         Mailer
	retry          resilience.RetryPolicy
	attemptTimeout time.Duration
	logger         zerolog.Logger
	wg             sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	senders := make(map[ChannelType]Sender, len(cfg.Senders))
	for _, s := range cfg.Senders {
		senders[s.Type()] = s
	}

	return &Dispatcher{
		repo:           cfg.Repository,
		senders:        senders,
		mailer:         cfg.Mailer,
		retry:          cfg.Retry,
		attemptTimeout: cfg.AttemptTimeout,
		logger:         cfg.Logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyAlert dispatches the event for an alert in the background.
func (d *Dispatcher) NotifyAlert(ctx context.Context, m *monitor.Monitor, a *monitor.Alert, check *monitor.CheckResult) {
	d.Notify(ctx, NewAlertEvent(m, a, check))
}

// Notify dispatches ev in the background. The dispatch outlives ctx
// cancellation; use Wait to drain.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(ctx, ev.TenantID, ev)
	}()
}

// Wait blocks until background dispatches have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// DispatchIncident announces an incident change to channels and subscribers.
func (d *Dispatcher) DispatchIncident(ctx context.Context, tenantID string, inc Incident, eventType EventType) Report {
	if inc.UpdatedAt.IsZero() {
		inc.UpdatedAt = time.Now().UTC()
	}
	return d.Dispatch(ctx, tenantID, Event{
		Type:       eventType,
		TenantID:   tenantID,
		Title:      incidentTitle(inc, eventType),
		Message:    inc.Message,
		Incident:   &inc,
		OccurredAt: inc.UpdatedAt,
	})
}

// Dispatch delivers ev to every enabled channel of the tenant and, for
// incident events, to every confirmed subscriber. Deliveries run to
// completion even if ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, ev Event) Report {
	ctx = context.WithoutCancel(ctx)
	logger := d.logger.With().
		Str("tenant_id", tenantID).
		Str("event", string(ev.Type)).
		Logger()

	channels, err := d.repo.ListEnabledChannels(ctx, tenantID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load notification channels")
	}

	var subscribers []*Subscriber
	if ev.IsIncident() && d.mailer != nil {
		subscribers, err = d.repo.ListConfirmedSubscribers(ctx, tenantID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load subscribers")
		}
	}

	deliveries := make([]Delivery, len(channels)+len(subscribers))
	var g errgroup.Group

	for i, ch := range channels {
		g.Go(func() error {
			deliveries[i] = d.deliverChannel(ctx, ch, ev)
			return nil
		})
	}
	for i, sub := range subscribers {
		g.Go(func() error {
			deliveries[len(channels)+i] = d.deliverSubscriber(ctx, sub, ev)
			return nil
		})
	}
	_ = g.Wait()

	for _, dl := range deliveries {
		metrics.ObserveNotification(string(dl.Channel), dl.Err == nil)
		if dl.Err != nil {
			logger.Warn().
				Err(dl.Err).
				Str("target", dl.Target).
				Str("channel", string(dl.Channel)).
				Int("attempts", dl.Attempts).
				Msg("notification delivery failed")
			continue
		}
		logger.Debug().
			Str("target", dl.Target).
			Str("channel", string(dl.Channel)).
			Int("attempts", dl.Attempts).
			Msg("notification delivered")
	}

	return Report{Deliveries: deliveries}
}

func (d *Dispatcher) deliverChannel(ctx context.Context, ch *Channel, ev Event) Delivery {
	dl := Delivery{Target: ch.ID, Channel: ch.Type}

	sender, ok := d.senders[ch.Type]
	if !ok {
		dl.Err = fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch.Type)
		return dl
	}

	dl.Attempts, dl.Err = d.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		return sender.Send(ctx, ch, ev)
	})
	return dl
}

func (d *Dispatcher) deliverSubscriber(ctx context.Context, sub *Subscriber, ev Event) Delivery {
	dl := Delivery{Target: sub.ID, Channel: ChannelEmail}

	dl.Attempts, dl.Err = d.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		return d.mailer.SendTo(ctx, []string{sub.Email}, ev)
	})
	return dl
}

func incidentTitle(inc Incident, t EventType) string {
	switch t {
	case EventIncidentCreated:
		return "New incident: " + inc.Title
	case EventIncidentResolved:
		return "Resolved: " + inc.Title
	default:
		return "Incident update: " + inc.Title
	}
}
