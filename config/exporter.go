package config

import (
	"fmt"
	"strings"
	"time"
)

// ExporterConfig of the order export flow.
type ExporterConfig struct {
	BackstageURL string `validate:"required,http_url"`
	OrdersURL    string `validate:"required,http_url"`

	Username string `validate:"required"`
	Password string `validate:"required"`

	DriveFolderID      string `validate:"required"`
	ServiceAccountFile string `validate:"required"`

	// optional, mirrors the export into a discord channel when both are set
	DiscordBotToken  string
	DiscordChannelID string

	WindowDays   int           `validate:"gt=0"`
	PageLimit    int           `validate:"gt=0"`
	LoginTimeout time.Duration `validate:"gt=0"`

	OutputDir     string
	ScreenshotDir string

	Log LogConfig
}

// LoginURL is the backstage page the browser session signs in on.
func (c ExporterConfig) LoginURL() string {
	return c.BackstageURL + "/login"
}

// LoadExporter reads and validates the order export configuration.
func LoadExporter(lookup Lookup) (ExporterConfig, error) {
	logCfg, err := LoadLog(lookup)
	if err != nil {
		return ExporterConfig{}, err
	}

	r := reader{lookup: lookup}
	cfg := ExporterConfig{
		BackstageURL: strings.TrimRight(r.str("BACKSTAGE_URL", "https://oneclub.backstage.oneclass.com.tw"), "/"),
		OrdersURL:    r.str("ORDERS_EXPORT_URL", "https://api.oneclass.co/product/orders/exportExcel"),

		Username: r.str("MMS_USERNAME", ""),
		Password: r.str("MMS_PASSWORD", ""),

		DriveFolderID:      r.str("GOOGLE_DRIVE_FOLDER_ID", ""),
		ServiceAccountFile: r.str("GOOGLE_SERVICE_ACCOUNT_FILE", "service-account.json"),

		DiscordBotToken:  r.str("DISCORD_BOT_TOKEN", ""),
		DiscordChannelID: r.str("EXPORT_DISCORD_CHANNEL_ID", ""),

		WindowDays:   r.int("EXPORT_WINDOW_DAYS", 7),
		PageLimit:    r.int("EXPORT_PAGE_LIMIT", 50),
		LoginTimeout: r.seconds("LOGIN_TIMEOUT", 10),

		OutputDir:     r.str("EXPORT_OUTPUT_DIR", "."),
		ScreenshotDir: r.str("SCREENSHOT_DIR", "."),

		Log: logCfg,
	}
	if r.err != nil {
		return ExporterConfig{}, r.err
	}

	if err := check(cfg); err != nil {
		return ExporterConfig{}, err
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordChannelID == "") {
		return ExporterConfig{}, fmt.Errorf(
			"%w: DISCORD_BOT_TOKEN and EXPORT_DISCORD_CHANNEL_ID must be set together", ErrInvalid,
		)
	}
	return cfg, nil
}

// MirrorToDiscord reports whether the export should also go to discord.
func (c ExporterConfig) MirrorToDiscord() bool {
	return c.DiscordBotToken != "" && c.DiscordChannelID != ""
}
