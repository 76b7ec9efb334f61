// Package slack posts directory events to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/userdir/internal/user"
)

// postTimeout bounds a single webhook delivery.
const postTimeout = 5 * time.Second

// Config holds Slack notification configuration.
type Config struct {
	// Enabled controls whether Slack notifications are active.
	Enabled bool `toml:"enabled" env:"USERDIR_SLACK_ENABLED"`

	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string `toml:"webhook_url,omitempty" env:"USERDIR_SLACK_WEBHOOK"`

	// Channel is the default channel (can be overridden by webhook config).
	Channel string `toml:"channel,omitempty" env:"USERDIR_SLACK_CHANNEL"`

	// NotifyOn controls which events trigger notifications.
	NotifyOn NotifySettings `toml:"notify_on"`
}

// NotifySettings controls which events trigger Slack notifications.
type NotifySettings struct {
	// CurrentUserChanged notifies when a new current user is set.
	CurrentUserChanged bool `toml:"current_user_changed"`

	// UserAdded notifies when a record is added.
	UserAdded bool `toml:"user_added"`

	// UserUpdated notifies when a record is renamed.
	UserUpdated bool `toml:"user_updated"`

	// UserRemoved notifies when a record is removed.
	UserRemoved bool `toml:"user_removed"`

	// DirectoryCleared notifies when all records are removed.
	DirectoryCleared bool `toml:"directory_cleared"`
}

// DefaultConfig returns a disabled config with sensible event defaults.
func DefaultConfig() Config {
	return Config{
		NotifyOn: NotifySettings{
			CurrentUserChanged: true,
			UserAdded:          false, // Too noisy by default
			UserUpdated:        false,
			UserRemoved:        true,
			DirectoryCleared:   true,
		},
	}
}

// Client sends notifications to Slack via incoming webhooks.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	notifyOn   NotifySettings
}

// NewClient creates a new Slack client from configuration.
func NewClient(cfg *Config) *Client {
	if cfg == nil || !cfg.Enabled || cfg.WebhookURL == "" {
		return &Client{enabled: false}
	}

	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    true,
		notifyOn:   cfg.NotifyOn,
		httpClient: &http.Client{
			Timeout: postTimeout,
		},
	}
}

// Enabled reports whether the client will post anything.
func (c *Client) Enabled() bool {
	return c.enabled
}

// slackMessage represents a Slack webhook payload.
type slackMessage struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text,omitempty"`
	Blocks  []slackBlock `json:"blocks,omitempty"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

// slackText represents text in a Slack block.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Post sends a message to Slack.
// Returns error if the request fails, but callers should generally ignore errors
// since Slack notifications are best-effort.
func (c *Client) Post(ctx context.Context, event EventType, fields map[string]string) error {
	if !c.enabled {
		return nil
	}

	if !c.shouldNotify(event) {
		return nil
	}

	msg := formatMessage(event, fields)
	if c.channel != "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

// shouldNotify checks if the given event type should trigger a notification.
func (c *Client) shouldNotify(event EventType) bool {
	switch event {
	case EventCurrentUserChanged:
		return c.notifyOn.CurrentUserChanged
	case EventUserAdded:
		return c.notifyOn.UserAdded
	case EventUserUpdated:
		return c.notifyOn.UserUpdated
	case EventUserRemoved:
		return c.notifyOn.UserRemoved
	case EventDirectoryCleared:
		return c.notifyOn.DirectoryCleared
	default:
		return true
	}
}

// Watcher records current-user changes on a directory. The subscriber only
// marks a change as pending, so SetCurrent never waits on the network;
// Flush posts the change once the caller has persisted it.
type Watcher struct {
	client *Client
	dir    *user.Directory
	id     uuid.UUID

	mu      sync.Mutex
	pending bool
}

// Watch subscribes a Watcher to d's change notification.
func (c *Client) Watch(d *user.Directory) *Watcher {
	w := &Watcher{client: c, dir: d}
	w.id = d.Subscribe(func() {
		w.mu.Lock()
		w.pending = true
		w.mu.Unlock()
	})
	return w
}

// Pending reports whether a change is waiting for Flush.
func (w *Watcher) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Flush posts the directory's current user if it changed since the last
// Flush. Several changes collapse into one post. extra is merged into the
// event fields. The pending mark is cleared even when the post fails.
func (w *Watcher) Flush(ctx context.Context, extra map[string]string) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = false
	w.mu.Unlock()
	if !pending {
		return nil
	}

	fields := map[string]string{
		FieldUserID: strconv.Itoa(w.dir.CurrentID()),
	}
	if name, err := w.dir.Current(); err == nil {
		fields[FieldUserName] = name
	}
	for k, v := range extra {
		fields[k] = v
	}
	return w.client.Post(ctx, EventCurrentUserChanged, fields)
}

// Stop removes the subscription. Pending changes are dropped.
func (w *Watcher) Stop() {
	w.dir.Unsubscribe(w.id)
	w.mu.Lock()
	w.pending = false
	w.mu.Unlock()
}
