package notify

//go:generate mockgen -destination=mocks/mock_channel.go -package=mocks -source=channel.go Channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/reposync/internal/httpclient"
)

// Notification scopes
const (
	ScopeBatch        = "batch"
	ScopeBatchSuccess = "batch_success"
	ScopeRepository   = "repository"
)

// Message is a single notification handed to a delivery channel
type Message struct {
	Scope          string   `json:"scope"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	Recipients     []string `json:"recipients,omitempty"`
	WebhookURL     string   `json:"-"`
	BatchID        string   `json:"batchId,omitempty"`
	RepositoryID   string   `json:"repositoryId,omitempty"`
	FailureCount   int      `json:"failureCount"`
	TotalProcessed int      `json:"totalProcessed,omitempty"`
}

// Channel delivers notifications
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// LogChannel writes notifications to the structured log
type LogChannel struct{}

// Send logs the message
func (LogChannel) Send(_ context.Context, msg Message) error {
	slog.Info("Notification",
		"scope", msg.Scope,
		"subject", msg.Subject,
		"recipients", msg.Recipients,
		"batch_id", msg.BatchID,
		"repository", msg.RepositoryID,
		"failure_count", msg.FailureCount)
	return nil
}

// WebhookChannel posts notifications to the chat webhook configured on each message.
// Messages without a webhook URL are ignored.
type WebhookChannel struct {
	client httpclient.Client
}

// NewWebhookChannel creates a WebhookChannel using the given HTTP client
func NewWebhookChannel(client httpclient.Client) *WebhookChannel {
	return &WebhookChannel{client: client}
}

type webhookPayload struct {
	Text string `json:"text"`
}

// Send posts the message text to the webhook
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if msg.WebhookURL == "" {
		return nil
	}
	payload := webhookPayload{Text: fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)}
	if _, err := c.client.PostJSON(ctx, msg.WebhookURL, payload); err != nil {
		return fmt.Errorf("failed to post webhook notification: %w", err)
	}
	return nil
}

// MultiChannel fans a message out to several channels
type MultiChannel []Channel

// Send delivers to every channel and joins the errors
func (m MultiChannel) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, ch := range m {
		if err := ch.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
