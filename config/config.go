// Package config reads the environment of both flows into validated,
// read-only settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every configuration failure.
var ErrInvalid = errors.New("invalid configuration")

// Lookup returns the value of an environment variable and whether it was set.
type Lookup func(key string) (string, bool)

// EnvLookup loads the env file at path into the process environment, if it
// exists, and returns os.LookupEnv. Variables already set in the process
// take precedence over the file.
func EnvLookup(path string) (Lookup, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file %s, %w", path, err)
	}
	return os.LookupEnv, nil
}

// MapLookup is a Lookup over a fixed map.
func MapLookup(env map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

type LogConfig struct {
	Level     string `validate:"required,oneof=DEBUG INFO WARNING WARN ERROR CRITICAL"`
	File      string `validate:"required"`
	MaxSizeMB int    `validate:"gt=0"`
	Backups   int    `validate:"gt=0"`
}

// Config of the expiry notification flow.
type Config struct {
	MMSBaseURL    string `validate:"required,http_url"`
	MMSAPIVersion string
	MMSAPIKey     string `validate:"required"`

	WebhookURL     string `validate:"required,http_url"`
	SlackChannel   string
	WebhookTimeout time.Duration

	NotificationDaysThreshold int `validate:"gt=0"`
	UrgentThreshold           int `validate:"gt=0,ltfield=WarningThreshold"`
	WarningThreshold          int `validate:"gt=0,ltfield=ExpiryThreshold"`
	ExpiryThreshold           int `validate:"gt=0"`

	APITimeout    time.Duration `validate:"gt=0"`
	APIMaxRetries int           `validate:"gt=0"`
	APIRetryDelay time.Duration `validate:"gt=0"`
	APIPageSize   int           `validate:"gt=0"`

	DetailURLBase string `validate:"required,http_url"`

	Log LogConfig
}

// env variable names, used in error messages
var envNames = map[string]string{
	"MMSBaseURL":                "MMS_BASE_URL",
	"MMSAPIKey":                 "MMS_API_KEY",
	"WebhookURL":                "SLACK_WEBHOOK_URL",
	"NotificationDaysThreshold": "NOTIFICATION_DAYS_THRESHOLD",
	"UrgentThreshold":           "NOTIFICATION_URGENT_THRESHOLD",
	"WarningThreshold":          "NOTIFICATION_WARNING_THRESHOLD",
	"ExpiryThreshold":           "EXPIRY_THRESHOLD",
	"APITimeout":                "API_TIMEOUT",
	"APIMaxRetries":             "API_MAX_RETRIES",
	"APIRetryDelay":             "API_RETRY_DELAY",
	"APIPageSize":               "API_PAGE_SIZE",
	"DetailURLBase":             "ORGANIZATION_DETAIL_URL",
	"Level":                     "LOG_LEVEL",
	"File":                      "LOG_FILE",
	"MaxSizeMB":                 "LOG_MAX_SIZE",
	"Backups":                   "LOG_BACKUP_COUNT",
	"Username":                  "MMS_USERNAME",
	"Password":                  "MMS_PASSWORD",
	"DriveFolderID":             "GOOGLE_DRIVE_FOLDER_ID",
	"ServiceAccountFile":        "GOOGLE_SERVICE_ACCOUNT_FILE",
	"BackstageURL":              "BACKSTAGE_URL",
	"OrdersURL":                 "ORDERS_EXPORT_URL",
	"WindowDays":                "EXPORT_WINDOW_DAYS",
	"PageLimit":                 "EXPORT_PAGE_LIMIT",
	"LoginTimeout":              "LOGIN_TIMEOUT",
	"DiscordChannelID":          "EXPORT_DISCORD_CHANNEL_ID",
}

var validate = validator.New()

// LoadLog reads only the logging settings, so an entry point can build its
// logger before the rest of the configuration is validated.
func LoadLog(lookup Lookup) (LogConfig, error) {
	r := reader{lookup: lookup}
	cfg := LogConfig{
		Level:     strings.ToUpper(r.str("LOG_LEVEL", "INFO")),
		File:      r.str("LOG_FILE", "mms_notify.log"),
		MaxSizeMB: r.int("LOG_MAX_SIZE", 10),
		Backups:   r.int("LOG_BACKUP_COUNT", 5),
	}
	if r.err != nil {
		return LogConfig{}, r.err
	}
	if err := check(cfg); err != nil {
		return LogConfig{}, err
	}
	return cfg, nil
}

// Load reads and validates the notification flow configuration.
func Load(lookup Lookup) (Config, error) {
	logCfg, err := LoadLog(lookup)
	if err != nil {
		return Config{}, err
	}

	r := reader{lookup: lookup}
	cfg := Config{
		MMSBaseURL:    strings.TrimRight(r.str("MMS_BASE_URL", "https://api-new.oneclass.co/mms/proxy/link-plus"), "/"),
		MMSAPIVersion: r.str("MMS_API_VERSION", "v1"),
		MMSAPIKey:     r.str("MMS_API_KEY", ""),

		WebhookURL:     r.str("SLACK_WEBHOOK_URL", ""),
		SlackChannel:   r.str("SLACK_CHANNEL", "#mms-notifications"),
		WebhookTimeout: r.seconds("SLACK_TIMEOUT", 10),

		NotificationDaysThreshold: r.int("NOTIFICATION_DAYS_THRESHOLD", 30),
		UrgentThreshold:           r.int("NOTIFICATION_URGENT_THRESHOLD", 7),
		WarningThreshold:          r.int("NOTIFICATION_WARNING_THRESHOLD", 30),
		ExpiryThreshold:           r.int("EXPIRY_THRESHOLD", 60),

		APITimeout:    r.seconds("API_TIMEOUT", 30),
		APIMaxRetries: r.int("API_MAX_RETRIES", 3),
		APIRetryDelay: r.seconds("API_RETRY_DELAY", 5),
		APIPageSize:   r.int("API_PAGE_SIZE", 50),

		DetailURLBase: r.str("ORGANIZATION_DETAIL_URL", "https://oneclub.backstage.oneclass.com.tw/organization/"),

		Log: logCfg,
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if cfg.WebhookTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: SLACK_TIMEOUT must be a positive integer", ErrInvalid)
	}

	if err := check(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Summary returns the non-secret settings, for logging at startup.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"mms_base_url":                   c.MMSBaseURL,
		"mms_api_version":                c.MMSAPIVersion,
		"slack_channel":                  c.SlackChannel,
		"notification_days_threshold":    c.NotificationDaysThreshold,
		"notification_urgent_threshold":  c.UrgentThreshold,
		"notification_warning_threshold": c.WarningThreshold,
		"api_timeout":                    c.APITimeout.String(),
		"api_max_retries":                c.APIMaxRetries,
		"api_retry_delay":                c.APIRetryDelay.String(),
		"api_page_size":                  c.APIPageSize,
		"log_level":                      c.Log.Level,
		"log_file":                       c.Log.File,
		"log_max_size_mb":                c.Log.MaxSizeMB,
		"log_backup_count":               c.Log.Backups,
		"expiry_threshold":               c.ExpiryThreshold,
	}
}

// run struct validation and turn the first failure into a readable error
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// report ordering problems after the per-field ones
	first := verrs[0]
	for _, fe := range verrs {
		if fe.Tag() != "ltfield" {
			first = fe
			break
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, describe(first))
}

func describe(fe validator.FieldError) string {
	name := envName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is not set", name)
	case "http_url":
		return fmt.Sprintf("%s is not a valid http(s) url", name)
	case "gt":
		return fmt.Sprintf("%s must be a positive integer", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", name, fe.Param())
	case "ltfield":
		return fmt.Sprintf("%s must be less than %s", name, envName(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

// reader collects the first parse error so Load can read every variable in
// one expression
type reader struct {
	lookup Lookup
	err    error
}

func (r *reader) str(key string, def string) string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func (r *reader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalid, key, v)
		}
		return 0
	}
	return n
}

func (r *reader) seconds(key string, def int) time.Duration {
	return time.Duration(r.int(key, def)) * time.Second
}
