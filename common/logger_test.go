package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mms-notify/app/config"
)

func TestNewLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "mms_notify.log")
	logger, cleanup, err := NewLogger(config.LogConfig{
		Level: "INFO", File: logFile, MaxSizeMB: 1, Backups: 1,
	})
	if err != nil {
		t.Fatalf("failed to create logger, %v", err)
	}

	logger.Debugf("test : hidden below info")
	logger.Infof("test : hello %s", "file")
	cleanup()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file, %v", err)
	}
	if !strings.Contains(string(data), "test : hello file") {
		t.Fatalf("log file missing message, got:\n%s", data)
	}
	if strings.Contains(string(data), "hidden below info") {
		t.Fatalf("debug message written at info level")
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"DEBUG", "INFO", "WARNING", "warn", "ERROR", "CRITICAL"} {
		if _, err := parseLevel(name); err != nil {
			t.Fatalf("failed to parse %s, %v", name, err)
		}
	}
	if _, err := parseLevel("verbose"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}
