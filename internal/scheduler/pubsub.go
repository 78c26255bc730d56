package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// Trigger job types.
const (
	JobTick         = "tick"
	JobCheckMonitor = "check_monitor"
)

// ErrUnknownJob is returned for trigger messages with an unknown job type.
var ErrUnknownJob = errors.New("unknown job type")

// TriggerMessage asks the scheduler to run outside its timer.
type TriggerMessage struct {
	JobType   string `json:"job_type"`
	MonitorID string `json:"monitor_id,omitempty"`
}

// HandleTrigger runs the job described by a trigger message. Only errors
// worth redelivering the message for are returned.
func (s *Scheduler) HandleTrigger(ctx context.Context, data []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse trigger: %w", err)
	}

	switch msg.JobType {
	case JobTick:
		s.Tick(ctx)
		return nil
	case JobCheckMonitor:
		_, err := s.RunMonitor(ctx, msg.MonitorID)
		if errors.Is(err, ErrCheckInProgress) || errors.Is(err, monitor.ErrMonitorNotFound) {
			s.logger.Debug().Err(err).Str("monitor_id", msg.MonitorID).Msg("ignoring check trigger")
			return nil
		}
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// CheckNow runs an immediate check of one monitor in-process.
func (s *Scheduler) CheckNow(ctx context.Context, monitorID string) error {
	_, err := s.RunMonitor(ctx, monitorID)
	return err
}

// PubSubHandler receives trigger messages for the scheduler.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	scheduler        *Scheduler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Scheduler        *Scheduler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		scheduler:        cfg.Scheduler,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub trigger handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	err := h.scheduler.HandleTrigger(ctx, msg.Data)
	switch {
	case err == nil:
		logger.Debug().Dur("duration", time.Since(startTime)).Msg("trigger handled")
		msg.Ack()
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Err(err).Msg("dropping trigger")
		msg.Ack() // Ack unknown messages to prevent redelivery
	default:
		logger.Error().Err(err).Msg("trigger failed")
		msg.Nack()
	}
}

// TriggerPublisher requests checks from a scheduler running in another
// process.
type TriggerPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewTriggerPublisher creates a publisher for the trigger topic.
func NewTriggerPublisher(ctx context.Context, projectID, topic string) (*TriggerPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &TriggerPublisher{client: client, publisher: client.Publisher(topic)}, nil
}

// CheckNow publishes a check_monitor trigger and waits for the broker to
// accept it.
func (p *TriggerPublisher) CheckNow(ctx context.Context, monitorID string) error {
	data, err := json.Marshal(TriggerMessage{JobType: JobCheckMonitor, MonitorID: monitorID})
	if err != nil {
		return err
	}
	if _, err := p.publisher.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx); err != nil {
		return fmt.Errorf("publish check trigger: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *TriggerPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
