package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/userdir/internal/user"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		enabled bool
	}{
		{
			name:    "nil config",
			cfg:     nil,
			enabled: false,
		},
		{
			name: "disabled config",
			cfg: &Config{
				Enabled:    false,
				WebhookURL: "https://hooks.slack.com/test",
			},
			enabled: false,
		},
		{
			name: "empty webhook",
			cfg: &Config{
				Enabled:    true,
				WebhookURL: "",
			},
			enabled: false,
		},
		{
			name: "valid config",
			cfg: &Config{
				Enabled:    true,
				WebhookURL: "https://hooks.slack.com/test",
			},
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.cfg)
			if client.Enabled() != tt.enabled {
				t.Errorf("NewClient().Enabled() = %v, want %v", client.Enabled(), tt.enabled)
			}
		})
	}
}

func TestClientPost(t *testing.T) {
	var receivedPayload slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json content type")
		}

		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:    true,
		WebhookURL: server.URL,
		Channel:    "#users",
		NotifyOn:   NotifySettings{UserAdded: true},
	})

	err := client.Post(context.Background(), EventUserAdded, map[string]string{
		FieldUserID:   "7",
		FieldUserName: "Floki",
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	if receivedPayload.Text == "" {
		t.Error("expected non-empty fallback text")
	}
	if receivedPayload.Channel != "#users" {
		t.Errorf("channel = %q, want %q", receivedPayload.Channel, "#users")
	}
	if len(receivedPayload.Blocks) == 0 {
		t.Error("expected blocks in payload")
	}
}

func TestClientPostDisabled(t *testing.T) {
	client := NewClient(&Config{Enabled: false})

	err := client.Post(context.Background(), EventUserRemoved, map[string]string{
		FieldUserID: "1",
	})
	if err != nil {
		t.Errorf("disabled client should not error: %v", err)
	}
}

func TestClientPostEventFiltering(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WebhookURL = server.URL
	client := NewClient(&cfg)

	ctx := context.Background()

	// Should send
	_ = client.Post(ctx, EventCurrentUserChanged, map[string]string{})
	if callCount != 1 {
		t.Errorf("expected 1 call for enabled event, got %d", callCount)
	}

	// Should not send (off by default)
	_ = client.Post(ctx, EventUserAdded, map[string]string{})
	if callCount != 1 {
		t.Errorf("expected no additional calls for disabled event, got %d", callCount)
	}

	// Should send
	_ = client.Post(ctx, EventDirectoryCleared, map[string]string{})
	if callCount != 2 {
		t.Errorf("expected 2 calls total, got %d", callCount)
	}
}

func TestClientPostErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:    true,
		WebhookURL: server.URL,
		NotifyOn:   NotifySettings{UserRemoved: true},
	})

	err := client.Post(context.Background(), EventUserRemoved, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected status error, got: %v", err)
	}
}

func TestClientPostTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(10 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(&Config{
		Enabled:    true,
		WebhookURL: server.URL,
		NotifyOn:   NotifySettings{CurrentUserChanged: true},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Post(ctx, EventCurrentUserChanged, map[string]string{})
	if err == nil {
		t.Error("expected timeout error")
	}
}

// recordingServer collects decoded webhook payloads.
func recordingServer(t *testing.T, status int) (*httptest.Server, func() []slackMessage) {
	t.Helper()
	var (
		mu       sync.Mutex
		received []slackMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg slackMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []slackMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]slackMessage(nil), received...)
	}
}

func TestWatcher_FlushAfterChange(t *testing.T) {
	server, received := recordingServer(t, http.StatusOK)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WebhookURL = server.URL
	client := NewClient(&cfg)

	d := user.New()
	w := client.Watch(d)
	defer w.Stop()

	d.SetCurrent("Ragnar")

	// Nothing is posted from inside the notification.
	if got := len(received()); got != 0 {
		t.Fatalf("received %d posts before Flush, want 0", got)
	}
	if !w.Pending() {
		t.Fatal("change should be pending")
	}

	if err := w.Flush(context.Background(), map[string]string{FieldSource: "git-config"}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	msgs := received()
	if len(msgs) != 1 {
		t.Fatalf("received %d posts, want 1", len(msgs))
	}
	body, _ := json.Marshal(msgs[0])
	for _, want := range []string{"Ragnar", "`4`", "git-config"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("payload missing %q: %s", want, body)
		}
	}

	// A second Flush with nothing new posts nothing.
	if err := w.Flush(context.Background(), nil); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(received()); got != 1 {
		t.Errorf("received %d posts after empty Flush, want 1", got)
	}
}

func TestWatcher_CollapsesChanges(t *testing.T) {
	server, received := recordingServer(t, http.StatusOK)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WebhookURL = server.URL
	client := NewClient(&cfg)

	d := user.New()
	w := client.Watch(d)
	defer w.Stop()

	d.SetCurrent("Ragnar")
	d.SetCurrent("Floki")
	if err := w.Flush(context.Background(), nil); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	msgs := received()
	if len(msgs) != 1 {
		t.Fatalf("received %d posts, want 1", len(msgs))
	}
	body, _ := json.Marshal(msgs[0])
	if !strings.Contains(string(body), "Floki") || strings.Contains(string(body), "Ragnar") {
		t.Errorf("payload should name only the latest user: %s", body)
	}
}

func TestWatcher_Stop(t *testing.T) {
	server, received := recordingServer(t, http.StatusOK)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WebhookURL = server.URL
	client := NewClient(&cfg)

	d := user.New()
	w := client.Watch(d)

	d.SetCurrent("Ragnar")
	w.Stop()
	d.SetCurrent("Bjorn")

	if w.Pending() {
		t.Error("Stop should drop pending changes")
	}
	if err := w.Flush(context.Background(), nil); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(received()); got != 0 {
		t.Errorf("received %d posts after Stop, want 0", got)
	}
}

func TestWatcher_FlushFailureClearsPending(t *testing.T) {
	server, received := recordingServer(t, http.StatusInternalServerError)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.WebhookURL = server.URL
	client := NewClient(&cfg)

	d := user.New()
	w := client.Watch(d)
	defer w.Stop()

	if id := d.SetCurrent("Ragnar"); id != 4 {
		t.Errorf("new id = %d, want 4", id)
	}
	if err := w.Flush(context.Background(), nil); err == nil {
		t.Error("expected error from 500 response")
	}
	if w.Pending() {
		t.Error("failed Flush should not leave the change pending")
	}
	if got := len(received()); got != 1 {
		t.Errorf("received %d posts, want 1", got)
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name       string
		event      EventType
		fields     map[string]string
		wantFields bool
	}{
		{
			name:  "current user changed",
			event: EventCurrentUserChanged,
			fields: map[string]string{
				FieldUserID:   "4",
				FieldUserName: "Ragnar",
			},
			wantFields: true,
		},
		{
			name:  "user renamed",
			event: EventUserUpdated,
			fields: map[string]string{
				FieldUserID:   "1",
				FieldUserName: "Lagertha the Shieldmaiden",
				FieldPrevious: "Lagertha",
			},
			wantFields: true,
		},
		{
			name:       "cleared",
			event:      EventDirectoryCleared,
			fields:     map[string]string{FieldCount: "3"},
			wantFields: true,
		},
		{
			name:       "unknown event",
			event:      EventType("something_else"),
			fields:     map[string]string{"k": "v"},
			wantFields: true,
		},
		{
			name:   "no fields",
			event:  EventUserRemoved,
			fields: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := formatMessage(tt.event, tt.fields)

			if msg.Text == "" {
				t.Error("expected non-empty fallback text")
			}
			want := 2
			if tt.wantFields {
				want = 3
			}
			if len(msg.Blocks) != want {
				t.Errorf("blocks = %d, want %d", len(msg.Blocks), want)
			}

			data, err := json.Marshal(msg)
			if err != nil {
				t.Errorf("message should be valid JSON: %v", err)
			}
			if len(data) == 0 {
				t.Error("expected non-empty JSON output")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
		{"", 10, ""},
	}

	for _, tt := range tests {
		got := truncate(tt.input, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
