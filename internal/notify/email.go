package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/wneessen/go-mail"

	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Configured reports whether a mail server is set.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// EmailSender delivers events over SMTP as multipart text/HTML messages.
type EmailSender struct {
	cfg      SMTPConfig
	breaker  *gobreaker.CircuitBreaker[struct{}]
	registry *resilience.Registry
}

// emailDestination is the registry name of the mail server.
const emailDestination = "email"

// NewEmailSender creates an email sender. registry may be nil.
func NewEmailSender(cfg SMTPConfig, registry *resilience.Registry) *EmailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	// A rejected recipient says nothing about the mail server, so it must
	// not count towards opening the shared breaker.
	breakerCfg := resilience.DefaultCircuitBreakerConfig(emailDestination)
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || isRecipientRejection(err)
	}

	s := &EmailSender{
		cfg:      cfg,
		breaker:  resilience.NewCircuitBreaker[struct{}](breakerCfg),
		registry: registry,
	}
	if registry != nil {
		registry.Register(emailDestination, s)
	}
	return s
}

// Type implements Sender.
func (s *EmailSender) Type() ChannelType { return ChannelEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, ch *Channel, ev Event) error {
	return s.SendTo(ctx, ch.Config.Recipients, ev)
}

// SendTo renders ev and mails it to the given recipients in one message.
// Recipients rejected by the server yield a permanent error.
func (s *EmailSender) SendTo(ctx context.Context, to []string, ev Event) error {
	if !s.cfg.Configured() {
		return resilience.Permanent(ErrSMTPNotConfigured)
	}
	if len(to) == 0 {
		return resilience.Permanent(ErrNoRecipients)
	}

	rendered, err := RenderEmail(ev)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("render email: %w", err))
	}
	msg, err := composeMessage(s.cfg.From, to, rendered, time.Now())
	if err != nil {
		return resilience.Permanent(err)
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.deliver(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = resilience.ErrCircuitOpen
	}

	if s.registry != nil {
		if err != nil && !isRecipientRejection(err) {
			s.registry.RecordFailure(emailDestination, err)
		} else {
			s.registry.RecordSuccess(emailDestination)
		}
	}
	if isRecipientRejection(err) {
		return resilience.Permanent(err)
	}
	return err
}

// CircuitBreakerState implements resilience.Breaker.
func (s *EmailSender) CircuitBreakerState() gobreaker.State { return s.breaker.State() }

// CircuitBreakerCounts implements resilience.Breaker.
func (s *EmailSender) CircuitBreakerCounts() gobreaker.Counts { return s.breaker.Counts() }

func (s *EmailSender) deliver(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			opts = append(opts, mail.WithTimeout(timeout))
		}
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("dial smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Send(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// isRecipientRejection reports whether the server refused a recipient with
// a permanent (5xx) reply.
func isRecipientRejection(err error) bool {
	var sendErr *mail.SendError
	if !errors.As(err, &sendErr) {
		return false
	}
	return sendErr.Reason == mail.ErrSMTPRcptTo && !sendErr.IsTemp()
}

// composeMessage builds a multipart/alternative message with a plain text
// body and an HTML alternative.
func composeMessage(from string, to []string, e *RenderedEmail, now time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}

	host := "pulsewatch.local"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		host = strings.Trim(from[at+1:], "> ")
	}
	msg.SetMessageIDWithValue(uuid.NewString() + "@" + host)
	msg.SetDateWithValue(now)
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
	return msg, nil
}
