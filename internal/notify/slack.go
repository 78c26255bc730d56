package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

// SlackSender posts Block Kit messages to Slack incoming webhooks.
type SlackSender struct {
	clients *clientPool
}

// NewSlackSender creates a Slack sender. httpClient may be nil.
func NewSlackSender(registry *resilience.Registry, httpClient *http.Client) *SlackSender {
	return &SlackSender{clients: newClientPool("slack", registry, httpClient)}
}

// Type implements Sender.
func (s *SlackSender) Type() ChannelType { return ChannelSlack }

// Send implements Sender.
func (s *SlackSender) Send(ctx context.Context, ch *Channel, ev Event) error {
	if ch.Config.URL == "" {
		return resilience.Permanent(ErrMissingURL)
	}

	body, err := json.Marshal(SlackMessage(ev))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("encode slack payload: %w", err))
	}
	return s.clients.post(ctx, ch, body, nil)
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// SlackPayload is an incoming webhook body.
type SlackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// SlackMessage renders ev as a Block Kit message. Text is the fallback shown
// in notifications.
func SlackMessage(ev Event) SlackPayload {
	title := fmt.Sprintf("%s %s", slackEmoji(ev.Severity()), ev.Title)

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
	}
	if ev.Message != "" {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: ev.Message}})
	}

	var fields []slackText
	if m := ev.Monitor; m != nil {
		fields = append(fields,
			slackText{Type: "mrkdwn", Text: "*Monitor*\n" + m.Name},
			slackText{Type: "mrkdwn", Text: "*Status*\n" + m.Status},
		)
		if m.Target != "" {
			fields = append(fields, slackText{Type: "mrkdwn", Text: "*Target*\n" + m.Target})
		}
		if m.Error != "" {
			fields = append(fields, slackText{Type: "mrkdwn", Text: "*Error*\n" + m.Error})
		}
	}
	if inc := ev.Incident; inc != nil {
		fields = append(fields, slackText{Type: "mrkdwn", Text: "*Incident status*\n" + capitalize(inc.Status)})
		if inc.Impact != "" {
			fields = append(fields, slackText{Type: "mrkdwn", Text: "*Impact*\n" + inc.Impact})
		}
	}
	if len(fields) > 0 {
		blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Elements: []slackText{{
			Type: "mrkdwn",
			Text: fmt.Sprintf("%s | <!date^%d^{date_short_pretty} {time}|%s>", ev.Type, ev.OccurredAt.Unix(), ev.OccurredAt.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	})

	return SlackPayload{Text: title, Blocks: blocks}
}

func slackEmoji(severity string) string {
	switch severity {
	case "critical":
		return ":red_circle:"
	case "warning":
		return ":large_yellow_circle:"
	case "ok":
		return ":large_green_circle:"
	default:
		return ":information_source:"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
