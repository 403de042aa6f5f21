package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/reposync/internal/store"
)

// DefaultFailureThreshold is the number of failed jobs within the trailing
// window that makes a repository notification fire
const DefaultFailureThreshold = 3

// Config controls whether and where failure notifications are sent
type Config struct {
	// Enabled turns every notification on or off
	Enabled bool `json:"enabled" yaml:"enabled"`

	// EmailRecipients receive batch and repository notifications
	EmailRecipients []string `json:"emailRecipients" yaml:"emailRecipients,omitempty"`

	// ChatWebhookURL is an optional chat webhook receiving the same notifications
	ChatWebhookURL string `json:"chatWebhookUrl,omitempty" yaml:"chatWebhookUrl,omitempty"`

	// FailureThreshold is the number of failures within 24h that triggers a repository notification
	FailureThreshold int `json:"failureThreshold" yaml:"failureThreshold,omitempty"`

	// SuccessNotificationsEnabled sends a summary for batches without failures
	SuccessNotificationsEnabled bool `json:"successNotificationsEnabled" yaml:"successNotificationsEnabled,omitempty"`
}

// DefaultConfig returns a disabled configuration with the default threshold
func DefaultConfig() Config {
	return Config{FailureThreshold: DefaultFailureThreshold}
}

// GetFailureThreshold returns the threshold, using the default when unset
func (c Config) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// Validate checks the notification configuration
func (c Config) Validate() error {
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failureThreshold cannot be negative, got %d", c.FailureThreshold)
	}
	for i, r := range c.EmailRecipients {
		if !strings.Contains(r, "@") {
			return fmt.Errorf("emailRecipients[%d]: %q is not an email address", i, r)
		}
	}
	if c.ChatWebhookURL != "" {
		u, err := url.Parse(c.ChatWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("chatWebhookUrl must be an absolute http(s) URL")
		}
	}
	return nil
}

const (
	fieldEnabled          = "enabled"
	fieldEmailRecipients  = "emailRecipients"
	fieldChatWebhookURL   = "chatWebhookUrl"
	fieldFailureThreshold = "failureThreshold"
	fieldSuccessEnabled   = "successNotificationsEnabled"
)

// ConfigStore reads and writes the singleton notification configuration record
type ConfigStore struct {
	store store.Store
	key   string
}

// NewConfigStore creates a ConfigStore
func NewConfigStore(s store.Store, keys store.Keys) *ConfigStore {
	return &ConfigStore{store: s, key: keys.NotificationConfig()}
}

// Load returns the stored configuration, or the default when none is stored
func (c *ConfigStore) Load(ctx context.Context) (Config, error) {
	fields, err := c.store.ReadRecord(ctx, c.key)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read notification config: %w", err)
	}
	if fields == nil {
		return DefaultConfig(), nil
	}
	r := store.Record(fields)
	return Config{
		Enabled:                     r.Bool(fieldEnabled),
		EmailRecipients:             r.Strings(fieldEmailRecipients),
		ChatWebhookURL:              r.String(fieldChatWebhookURL),
		FailureThreshold:            r.Int(fieldFailureThreshold),
		SuccessNotificationsEnabled: r.Bool(fieldSuccessEnabled),
	}, nil
}

// Save validates and stores the configuration
func (c *ConfigStore) Save(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := store.Record{}
	r.SetBool(fieldEnabled, cfg.Enabled)
	r.SetStrings(fieldEmailRecipients, cfg.EmailRecipients)
	r.SetString(fieldChatWebhookURL, cfg.ChatWebhookURL)
	r.SetInt(fieldFailureThreshold, cfg.GetFailureThreshold())
	r.SetBool(fieldSuccessEnabled, cfg.SuccessNotificationsEnabled)
	if err := c.store.WriteRecord(ctx, c.key, r); err != nil {
		return fmt.Errorf("failed to write notification config: %w", err)
	}
	return nil
}

// Seed stores cfg only when no configuration has been stored yet
func (c *ConfigStore) Seed(ctx context.Context, cfg Config) error {
	fields, err := c.store.ReadRecord(ctx, c.key)
	if err != nil {
		return fmt.Errorf("failed to read notification config: %w", err)
	}
	if fields != nil {
		return nil
	}
	return c.Save(ctx, cfg)
}
