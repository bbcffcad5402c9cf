package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mms-notify/app/config"
)

func expiring(name string, days int) map[string]any {
	return map[string]any{
		"name":           name,
		"uid":            "uid-" + name,
		"expirationTime": time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02T15:04:05.000Z"),
		"ownerLastName":  "Lin",
		"ownerFirstName": "Yu",
		"contactNumbers": []map[string]any{{"type": 1, "number": "0912-345-678"}},
	}
}

// serves records on page 1 and an empty page after that
func newMMSServer(t *testing.T, records []map[string]any, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			PageNumber int `json:"pageNumber"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		page := []map[string]any{}
		if req.PageNumber == 1 {
			page = records
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"data": map[string]any{"pageData": page}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEnv(t *testing.T, mmsURL string, webhookURL string) map[string]string {
	return map[string]string{
		"MMS_BASE_URL":      mmsURL,
		"MMS_API_KEY":       "test-key",
		"SLACK_WEBHOOK_URL": webhookURL,
		"EXPIRY_THRESHOLD":  "60",
		"LOG_FILE":          filepath.Join(t.TempDir(), "logs", "mms_notify.log"),
		"LOG_LEVEL":         "DEBUG",
	}
}

func TestRun_SendsNotification(t *testing.T) {
	var mmsCalls int32
	mmsSrv := newMMSServer(t, []map[string]any{
		expiring("gamma-academy", 90),
		expiring("alpha-academy", 3),
		expiring("beta-academy", 45),
	}, &mmsCalls)

	var payload string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf strings.Builder
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(&buf).Encode(body)
		payload = buf.String()
	}))
	defer webhook.Close()

	err := run(context.Background(), config.MapLookup(testEnv(t, mmsSrv.URL, webhook.URL)))
	if err != nil {
		t.Fatalf("failed to run notification flow, %v", err)
	}

	if mmsCalls != 2 {
		t.Fatalf("expected 2 page requests, got %d", mmsCalls)
	}
	if payload == "" {
		t.Fatalf("expected a webhook request")
	}
	if strings.Contains(payload, "gamma-academy") {
		t.Fatalf("institution beyond the threshold was notified")
	}
	if strings.Index(payload, "alpha-academy") > strings.Index(payload, "beta-academy") {
		t.Fatalf("expected nearest expiry first")
	}
}

func TestRun_NothingExpiring(t *testing.T) {
	var mmsCalls int32
	mmsSrv := newMMSServer(t, nil, &mmsCalls)

	var webhookCalls int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&webhookCalls, 1)
	}))
	defer webhook.Close()

	if err := run(context.Background(), config.MapLookup(testEnv(t, mmsSrv.URL, webhook.URL))); err != nil {
		t.Fatalf("failed to run notification flow, %v", err)
	}
	if webhookCalls != 0 {
		t.Fatalf("expected no webhook request, got %d", webhookCalls)
	}
}

func TestRun_FailedNotificationIsNotAnError(t *testing.T) {
	var mmsCalls int32
	mmsSrv := newMMSServer(t, []map[string]any{expiring("alpha-academy", 3)}, &mmsCalls)

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer webhook.Close()

	if err := run(context.Background(), config.MapLookup(testEnv(t, mmsSrv.URL, webhook.URL))); err != nil {
		t.Fatalf("a failed notification should not fail the run, %v", err)
	}
}

func TestRun_InvalidConfigMakesNoRequest(t *testing.T) {
	var mmsCalls int32
	mmsSrv := newMMSServer(t, []map[string]any{expiring("alpha-academy", 3)}, &mmsCalls)

	env := testEnv(t, mmsSrv.URL, "https://hooks.slack.com/services/T/B/X")
	env["NOTIFICATION_URGENT_THRESHOLD"] = "30"
	env["NOTIFICATION_WARNING_THRESHOLD"] = "7"

	err := run(context.Background(), config.MapLookup(env))
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if mmsCalls != 0 {
		t.Fatalf("expected no request before the configuration is valid, got %d", mmsCalls)
	}
}

func TestRun_TransportErrorFails(t *testing.T) {
	mmsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer mmsSrv.Close()

	if err := run(context.Background(), config.MapLookup(testEnv(t, mmsSrv.URL, "https://hooks.slack.com/services/T/B/X"))); err == nil {
		t.Fatalf("expected the run to fail")
	}
}
