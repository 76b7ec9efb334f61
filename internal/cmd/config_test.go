package cmd

import (
	"os"
	"strings"
	"testing"

	"github.com/steveyegge/userdir/internal/config"
)

func TestConfigInit(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "config", "init")
	if !strings.Contains(out, "Wrote") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := os.Stat(config.ConfigPath(root)); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := runCLI(t, root, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	mustRun(t, root, "config", "init", "--force")

	// The written seed matches the built-in one.
	out = mustRun(t, root, "user", "count")
	if strings.TrimSpace(out) != "3" {
		t.Errorf("count = %q, want 3", strings.TrimSpace(out))
	}
}

func TestConfigShow(t *testing.T) {
	root := t.TempDir()
	t.Setenv("USERDIR_UPDATE_POLICY", "upsert")

	out := mustRun(t, root, "config", "show")
	for _, want := range []string{`store = "json"`, `update_policy = "upsert"`, "users.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_Invalid(t *testing.T) {
	t.Setenv("USERDIR_STORE", "postgres")

	if _, err := runCLI(t, t.TempDir(), "config", "show"); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigShow_MasksWebhook(t *testing.T) {
	t.Setenv("USERDIR_SLACK_ENABLED", "true")
	t.Setenv("USERDIR_SLACK_WEBHOOK", "https://hooks.slack.com/services/T0001/B0001/s3cr3tT0ken")

	out := mustRun(t, t.TempDir(), "config", "show")
	if strings.Contains(out, "s3cr3tT0ken") || strings.Contains(out, "T0001") {
		t.Errorf("webhook path leaked:\n%s", out)
	}
	if !strings.Contains(out, "https://hooks.slack.com/****") {
		t.Errorf("masked webhook missing:\n%s", out)
	}
}

func TestMaskURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "https://hooks.slack.com/services/T/B/x", want: "https://hooks.slack.com/****"},
		{in: "not a url", want: "****"},
		{in: "://bad", want: "****"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := maskURL(tt.in); got != tt.want {
				t.Errorf("maskURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
