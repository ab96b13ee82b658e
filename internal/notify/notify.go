// Package notify implements the chat-platform notifier collaborator:
// escalations from the audit log and error recovery are posted to a Slack
// incoming webhook. The out-of-scope chat-command surface (signature
// verification, slash-command parsing) is not implemented here — this
// package only sends outbound messages.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier sends a message to the configured chat channel.
type Notifier interface {
	Notify(ctx context.Context, level, text string) error
}

// SlackNotifier posts to a Slack incoming webhook using slack-go/slack,
// attested as a direct dependency in the pack (jordigilh-kubernaut's
// go.mod) for chat-platform notifications.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
}

// New creates a SlackNotifier. webhookURL may be empty, in which case
// Notify is a no-op — useful for local development without a configured
// Slack workspace.
func New(webhookURL, channel, username string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, username: username}
}

// Notify posts text to the configured webhook, prefixed with level. A
// missing webhook URL is treated as "notifications disabled" rather than
// an error.
func (n *SlackNotifier) Notify(_ context.Context, level, text string) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := &slack.WebhookMessage{
		Channel:  n.channel,
		Username: n.username,
		Text:     fmt.Sprintf("[%s] %s", level, text),
	}
	if err := slack.PostWebhook(n.webhookURL, msg); err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	return nil
}

// NoopNotifier discards every notification; used in tests and wherever no
// chat integration is configured.
type NoopNotifier struct{}

// Notify implements Notifier by doing nothing.
func (NoopNotifier) Notify(context.Context, string, string) error { return nil }
