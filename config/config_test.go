package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validEnv() map[string]string {
	return map[string]string{
		"MMS_BASE_URL":      "https://api.example.com/mms/proxy/link-plus/",
		"MMS_API_KEY":       "secret-key",
		"SLACK_WEBHOOK_URL": "https://hooks.slack.com/services/T000/B000/XXXX",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(MapLookup(validEnv()))
	if err != nil {
		t.Fatalf("failed to load config, %v", err)
	}

	if cfg.MMSBaseURL != "https://api.example.com/mms/proxy/link-plus" {
		t.Fatalf("trailing slash not trimmed, got %s", cfg.MMSBaseURL)
	}
	if cfg.UrgentThreshold != 7 || cfg.WarningThreshold != 30 || cfg.ExpiryThreshold != 60 {
		t.Fatalf("unexpected thresholds %d/%d/%d", cfg.UrgentThreshold, cfg.WarningThreshold, cfg.ExpiryThreshold)
	}
	if cfg.WebhookTimeout != 10*time.Second {
		t.Fatalf("expected 10s webhook timeout, got %s", cfg.WebhookTimeout)
	}
	if cfg.APIPageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.APIPageSize)
	}
	if cfg.Log.Level != "INFO" || cfg.Log.File != "mms_notify.log" || cfg.Log.MaxSizeMB != 10 || cfg.Log.Backups != 5 {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if _, ok := cfg.Summary()["mms_api_key"]; ok {
		t.Fatalf("summary must not carry the api key")
	}
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"missing api key", map[string]string{"MMS_API_KEY": ""}, "MMS_API_KEY is not set"},
		{"missing webhook", map[string]string{"SLACK_WEBHOOK_URL": ""}, "SLACK_WEBHOOK_URL is not set"},
		{"bad webhook", map[string]string{"SLACK_WEBHOOK_URL": "hooks.slack.com/services"}, "SLACK_WEBHOOK_URL is not a valid"},
		{"bad base url", map[string]string{"MMS_BASE_URL": "ftp://api.example.com"}, "MMS_BASE_URL is not a valid"},
		{"reversed thresholds", map[string]string{
			"NOTIFICATION_URGENT_THRESHOLD":  "30",
			"NOTIFICATION_WARNING_THRESHOLD": "7",
		}, "NOTIFICATION_URGENT_THRESHOLD must be less than NOTIFICATION_WARNING_THRESHOLD"},
		{"warning above expiry", map[string]string{
			"NOTIFICATION_WARNING_THRESHOLD": "60",
			"EXPIRY_THRESHOLD":               "60",
		}, "NOTIFICATION_WARNING_THRESHOLD must be less than EXPIRY_THRESHOLD"},
		{"zero page size", map[string]string{"API_PAGE_SIZE": "0"}, "API_PAGE_SIZE must be a positive integer"},
		{"non integer", map[string]string{"EXPIRY_THRESHOLD": "sixty"}, "EXPIRY_THRESHOLD must be a positive integer"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL must be one of"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := validEnv()
			for k, v := range tc.env {
				env[k] = v
			}

			_, err := Load(MapLookup(env))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error containing %q, got %q", tc.wantMsg, err.Error())
			}
		})
	}
}

func TestLoadExporter(t *testing.T) {
	env := map[string]string{
		"MMS_USERNAME":           "ops@example.com",
		"MMS_PASSWORD":           "hunter2",
		"GOOGLE_DRIVE_FOLDER_ID": "folder-123",
	}
	cfg, err := LoadExporter(MapLookup(env))
	if err != nil {
		t.Fatalf("failed to load exporter config, %v", err)
	}
	if cfg.LoginURL() != "https://oneclub.backstage.oneclass.com.tw/login" {
		t.Fatalf("unexpected login url %s", cfg.LoginURL())
	}
	if cfg.WindowDays != 7 || cfg.PageLimit != 50 {
		t.Fatalf("unexpected window/limit %d/%d", cfg.WindowDays, cfg.PageLimit)
	}
	if cfg.MirrorToDiscord() {
		t.Fatalf("discord mirror should be off by default")
	}

	delete(env, "MMS_PASSWORD")
	if _, err := LoadExporter(MapLookup(env)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing password, got %v", err)
	}

	env["MMS_PASSWORD"] = "hunter2"
	env["DISCORD_BOT_TOKEN"] = "bot-token"
	if _, err := LoadExporter(MapLookup(env)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for a token without a channel, got %v", err)
	}
}

func TestEnvLookupReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.env")
	if err := os.WriteFile(path, []byte("MMS_TEST_ONLY_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file, %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MMS_TEST_ONLY_VALUE") })

	lookup, err := EnvLookup(path)
	if err != nil {
		t.Fatalf("failed to load env file, %v", err)
	}
	if v, _ := lookup("MMS_TEST_ONLY_VALUE"); v != "from-file" {
		t.Fatalf("expected value from file, got %q", v)
	}

	if _, err := EnvLookup(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("a missing env file should not fail, %v", err)
	}
}
